package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/local/outreach/internal/crm"
)

// CRM is the narrow submit surface process_user_agreement needs.
type CRM interface {
	Submit(ctx context.Context, name, phone, note, telegram string) bool
}

// RegisterAll wires the five conversation tools spec.md §6 names into the
// registry. links may be nil (get_link then always reports not-found);
// crmClient may be nil (agreements save the summary but report a CRM error).
func RegisterAll(r *Registry, links *Links, crmClient CRM) {
	r.Register(Def{
		Name:        "get_link",
		Description: "Возвращает ссылку из каталога по пути ключей.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"keys": {"type": "array", "items": {"type": "string"}, "description": "Путь ключей в каталоге ссылок"}
			},
			"required": ["keys"]
		}`),
	}, func(ctx context.Context, tc Context, args json.RawMessage) (string, error) {
		var in struct {
			Keys []string `json:"keys"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return "", err
		}
		if links == nil {
			return linkNotFound, nil
		}
		return links.Lookup(in.Keys), nil
	})

	r.Register(Def{
		Name:        "save_user_phone",
		Description: "Сохраняет номер телефона клиента.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"phone": {"type": "string", "description": "Номер телефона клиента"}
			},
			"required": ["phone"]
		}`),
	}, func(ctx context.Context, tc Context, args json.RawMessage) (string, error) {
		var in struct {
			Phone string `json:"phone"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return "", err
		}
		phone := NormalizePhone(in.Phone)
		if phone == "" {
			return "Неправильное число цифр в номере", nil
		}
		if err := tc.Users.UpdateUserParam(ctx, tc.UserID, "phone", phone); err != nil {
			return "", err
		}
		return "Телефон сохранен", nil
	})

	r.Register(Def{
		Name:        "save_user_name",
		Description: "Сохраняет имя клиента.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {"type": "string", "description": "Имя клиента"}
			},
			"required": ["name"]
		}`),
	}, func(ctx context.Context, tc Context, args json.RawMessage) (string, error) {
		var in struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return "", err
		}
		if err := tc.Users.UpdateUserParam(ctx, tc.UserID, "display_name", in.Name); err != nil {
			return "", err
		}
		return "Имя сохранено", nil
	})

	r.Register(Def{
		Name:        "ban_user",
		Description: "Блокирует клиента: больше никаких сообщений.",
		Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
	}, func(ctx context.Context, tc Context, args json.RawMessage) (string, error) {
		if err := tc.Users.UpdateUserParam(ctx, tc.UserID, "banned", true); err != nil {
			return "", err
		}
		return "Пользователь заблокирован", nil
	})

	r.Register(Def{
		Name:        "process_user_agreement",
		Description: "Фиксирует согласие клиента на звонок и отправляет его данные в CRM.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"summary": {"type": "string", "description": "Краткое описание запроса клиента"}
			},
			"required": ["summary"]
		}`),
	}, func(ctx context.Context, tc Context, args json.RawMessage) (string, error) {
		var in struct {
			Summary string `json:"summary"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return "", err
		}
		return processAgreement(ctx, tc, crmClient, in.Summary)
	})
}

func processAgreement(ctx context.Context, tc Context, crmClient CRM, summary string) (string, error) {
	if err := tc.Users.UpdateUserParam(ctx, tc.UserID, "summary", summary); err != nil {
		return "", err
	}

	user, err := tc.Users.GetUser(ctx, tc.UserID)
	if err != nil {
		return "", fmt.Errorf("process_user_agreement: %w", err)
	}
	name := user.DisplayName
	if name == "" {
		name = user.Username
	}

	if crmClient == nil || !crmClient.Submit(ctx, name, user.Phone, summary, user.Username) {
		return "Ошибка добавления в CRM, попробуй еще раз", nil
	}
	if err := tc.Users.UpdateUserParam(ctx, tc.UserID, "crm", true); err != nil {
		return "", err
	}
	return "Пользователь отмечен как согласный на звонок, данные отправлены в CRM.", nil
}

var _ CRM = (*crm.Client)(nil)
