package tools

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/local/outreach/internal/store"
)

// fakeUsers is an in-memory UserStore.
type fakeUsers struct {
	mu    sync.Mutex
	users map[int64]store.User
}

func newFakeUsers(seed ...store.User) *fakeUsers {
	f := &fakeUsers{users: make(map[int64]store.User)}
	for _, u := range seed {
		f.users[u.UserID] = u
	}
	return f
}

func (f *fakeUsers) GetUser(ctx context.Context, userID int64) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) UpdateUserParam(ctx context.Context, userID int64, column string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[userID]
	u.UserID = userID
	switch column {
	case "phone":
		u.Phone = value.(string)
	case "display_name":
		u.DisplayName = value.(string)
	case "banned":
		u.Banned = value.(bool)
	case "summary":
		u.Summary = value.(string)
	case "crm":
		u.CRM = value.(bool)
	case "conversation_id":
		u.ConversationID = value.(string)
	default:
		return errors.New("unexpected column " + column)
	}
	f.users[userID] = u
	return nil
}

type fakeCRM struct{ ok bool }

func (f *fakeCRM) Submit(ctx context.Context, name, phone, note, telegram string) bool { return f.ok }

func writeLinks(t *testing.T, content string) *Links {
	t.Helper()
	path := filepath.Join(t.TempDir(), "links.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	l, err := LoadLinks(path)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestUnknownToolYieldsEmptyOutput(t *testing.T) {
	r := NewRegistry(nil)
	out := r.Execute(context.Background(), Context{}, "no_such_tool", json.RawMessage(`{}`))
	if out != "" {
		t.Fatalf("unknown tool should yield empty output, got %q", out)
	}
}

func TestGetLink(t *testing.T) {
	links := writeLinks(t, `{"catalog": {"spring": "https://example.com/spring"}, "site": "https://example.com"}`)
	r := NewRegistry(nil)
	RegisterAll(r, links, &fakeCRM{ok: true})

	cases := []struct {
		name string
		keys string
		want string
	}{
		{"nested", `["catalog", "spring"]`, "https://example.com/spring"},
		{"top level", `["site"]`, "https://example.com"},
		{"missing key", `["catalog", "winter"]`, "Ссылка не найдена"},
		{"path through string", `["site", "deeper"]`, "Ссылка не найдена"},
		{"path ends on map", `["catalog"]`, "Ссылка не найдена"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			args := json.RawMessage(`{"keys": ` + c.keys + `}`)
			if got := r.Execute(context.Background(), Context{}, "get_link", args); got != c.want {
				t.Errorf("get_link(%s) = %q, want %q", c.keys, got, c.want)
			}
		})
	}
}

func TestSaveUserPhone(t *testing.T) {
	users := newFakeUsers(store.User{UserID: 7})
	r := NewRegistry(nil)
	RegisterAll(r, nil, nil)
	tc := Context{UserID: 7, Users: users}

	out := r.Execute(context.Background(), tc, "save_user_phone", json.RawMessage(`{"phone": "8 916 123 45 67"}`))
	if out != "Телефон сохранен" {
		t.Fatalf("unexpected reply: %q", out)
	}
	u, _ := users.GetUser(context.Background(), 7)
	if u.Phone != "+79161234567" {
		t.Fatalf("phone not normalized/saved: %q", u.Phone)
	}

	out = r.Execute(context.Background(), tc, "save_user_phone", json.RawMessage(`{"phone": "12"}`))
	if out != "Неправильное число цифр в номере" {
		t.Fatalf("unexpected reply for bad phone: %q", out)
	}
}

func TestBanUser(t *testing.T) {
	users := newFakeUsers(store.User{UserID: 7})
	r := NewRegistry(nil)
	RegisterAll(r, nil, nil)

	out := r.Execute(context.Background(), Context{UserID: 7, Users: users}, "ban_user", json.RawMessage(`{}`))
	if out != "Пользователь заблокирован" {
		t.Fatalf("unexpected reply: %q", out)
	}
	u, _ := users.GetUser(context.Background(), 7)
	if !u.Banned {
		t.Fatal("expected banned=true")
	}
}

func TestProcessUserAgreement(t *testing.T) {
	t.Run("crm success", func(t *testing.T) {
		users := newFakeUsers(store.User{UserID: 7, Username: "tg_user", Phone: "+79161234567"})
		r := NewRegistry(nil)
		RegisterAll(r, nil, &fakeCRM{ok: true})

		out := r.Execute(context.Background(), Context{UserID: 7, Users: users},
			"process_user_agreement", json.RawMessage(`{"summary": "хочет звонок"}`))
		if out != "Пользователь отмечен как согласный на звонок, данные отправлены в CRM." {
			t.Fatalf("unexpected reply: %q", out)
		}
		u, _ := users.GetUser(context.Background(), 7)
		if !u.CRM || u.Summary != "хочет звонок" {
			t.Fatalf("user not updated: %+v", u)
		}
	})

	t.Run("crm failure keeps summary, not crm flag", func(t *testing.T) {
		users := newFakeUsers(store.User{UserID: 7, Username: "tg_user"})
		r := NewRegistry(nil)
		RegisterAll(r, nil, &fakeCRM{ok: false})

		out := r.Execute(context.Background(), Context{UserID: 7, Users: users},
			"process_user_agreement", json.RawMessage(`{"summary": "s"}`))
		if out != "Ошибка добавления в CRM, попробуй еще раз" {
			t.Fatalf("unexpected reply: %q", out)
		}
		u, _ := users.GetUser(context.Background(), 7)
		if u.CRM {
			t.Fatal("crm flag must not be set on a failed submission")
		}
		if u.Summary != "s" {
			t.Fatal("summary should be saved even when CRM fails")
		}
	})
}
