package usecase

import (
	"fmt"
	"strings"

	"lead-dashboard/internal/domain"
)

const (
	windowMessages = 20

	summaryLines  = 15
	dateLines     = 8
	nameLines     = 20
	classifyLines = 20

	userPrefix      = "Usuário: "
	assistantPrefix = "Assistente: "
)

// BuildWindow renders the last windowMessages user/assistant messages as
// "Usuário: …" / "Assistente: …" lines. Other roles are dropped.
func BuildWindow(msgs []domain.ChatMessage) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case domain.RoleUser:
			lines = append(lines, userPrefix+m.Content)
		case domain.RoleAssistant:
			lines = append(lines, assistantPrefix+m.Content)
		}
	}
	if len(lines) > windowMessages {
		lines = lines[len(lines)-windowMessages:]
	}
	return strings.Join(lines, "\n")
}

// CountUserMessages returns how many messages were sent by the user.
func CountUserMessages(msgs []domain.ChatMessage) int {
	n := 0
	for _, m := range msgs {
		if m.Role == domain.RoleUser {
			n++
		}
	}
	return n
}

// lastLines returns at most n trailing lines of window.
func lastLines(window string, n int) string {
	lines := strings.Split(strings.TrimSpace(window), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func summaryPrompt(window, phone, aiName, objectives string) []domain.ChatMessage {
	system := fmt.Sprintf(
		"Escreva o resumo em um único parágrafo, sem quebras de linha. "+
			"Resuma a conversa entre o usuário de número %s e a IA chamada %s. "+
			"Se o usuário informar o próprio nome, use esse nome ao se referir a ele. "+
			"Lembre-se de que %s é o nome da IA. "+
			"No resumo, dê atenção às seguintes situações: %s",
		phone, aiName, aiName, strings.TrimSpace(objectives),
	)
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: "Mensagens entre o usuário e a IA:\n\n" + lastLines(window, summaryLines)},
	}
}

func datePrompt(window, phone string) []domain.ChatMessage {
	instruction := fmt.Sprintf(
		"Identifique a data da mensagem mais recente enviada pelo número %s. "+
			"Responda apenas com a data no formato 'DD/MM/AA HH:MM:SS', por exemplo 12/10/24 09:30:55. "+
			"Se houver mensagens com '12/10/24 09:30:55' e '12/10/24 09:35:55', responda '12/10/24 09:35:55'.",
		phone,
	)
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: instruction},
		{Role: domain.RoleUser, Content: "Mensagens:\n\n" + lastLines(window, dateLines)},
	}
}

func namePrompt(window, phone, aiName string) []domain.ChatMessage {
	system := fmt.Sprintf(
		"Analise a conversa entre o usuário de telefone %s e a IA chamada %s. "+
			"Identifique o nome do usuário e responda apenas com ele, por exemplo 'Bruno'. "+
			"Se o usuário não informou o nome, responda apenas '%s'. "+
			"Lembre-se de que %s é o nome da IA, não do usuário.",
		phone, aiName, domain.NameNotProvided, aiName,
	)
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: "Mensagens:\n\n" + lastLines(window, nameLines)},
	}
}

func classifyPrompt(window, phone, aiName, taxonomy string) []domain.ChatMessage {
	system := fmt.Sprintf(
		"Analise a conversa entre o usuário de telefone %s e a IA chamada %s. "+
			"Classifique a conversa em uma das categorias a seguir: %s. "+
			"Responda apenas com a categoria, por exemplo 'Lead quente'.",
		phone, aiName, strings.TrimSpace(taxonomy),
	)
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: "Mensagens:\n\n" + lastLines(window, classifyLines)},
	}
}
