package scheduler

import (
	"fmt"
	"math/rand"
)

// Intro phrase fragments combined into the randomized greeting prefix every
// outreach send opens with, so no two executors greet with an identical
// template.
var (
	introOpeners = []string{
		"Здравствуйте!",
		"Добрый день!",
		"Приветствую!",
		"Здравствуйте.",
	}
	introHooks = []string{
		"Увидел ваше сообщение в чате.",
		"Заметил ваш вопрос в обсуждении.",
		"Наткнулся на ваше сообщение.",
		"Видел, что вы интересовались этой темой.",
	}
	introBridges = []string{
		"Подскажите, вопрос еще актуален?",
		"Могу рассказать подробнее, если интересно.",
		"Актуально еще?",
		"Готов поделиться деталями.",
	}
)

// generateIntroMessage assembles one randomized greeting prefix.
func generateIntroMessage() string {
	return fmt.Sprintf("%s %s %s",
		introOpeners[rand.Intn(len(introOpeners))],
		introHooks[rand.Intn(len(introHooks))],
		introBridges[rand.Intn(len(introBridges))],
	)
}
