package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"lead-dashboard/internal/domain"
)

func sampleRows() []domain.AnalysisRow {
	return []domain.AnalysisRow{
		{
			Selected:         true,
			Phone:            "11987654321",
			CreatedAt:        "12/10/24 09:35:55",
			Summary:          "Cliente pediu orçamento, agradeceu, \"ótimo\".",
			MessagesSnapshot: "Usuário: Oi\nAssistente: Olá!",
			UserMessageCount: 4,
			Status:           "Lead quente",
			UserName:         "Ana",
			ThreadID:         "thread_abc",
			ContactLink:      "https://wa.me/5511987654321",
			AreaCode:         "11",
		},
		{
			Phone:            "21912345678",
			CreatedAt:        "",
			Summary:          domain.NoSummary,
			UserName:         domain.NameNotProvided,
			Status:           domain.NotClassified,
			ContactLink:      "https://wa.me/5521912345678",
			AreaCode:         "21",
			UserMessageCount: 0,
		},
	}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleRows()))

	firstLine := strings.SplitN(buf.String(), "\n", 2)[0]
	require.Equal(t, strings.Join(Header, ","), firstLine)

	got, err := Read(&buf)
	require.NoError(t, err)
	require.Equal(t, sampleRows(), got)
}

func TestRead_HeaderNormalizationAndExtraColumns(t *testing.T) {
	in := "\ufeff Status ,CREATED_AT,summary,user_message_count,user_name,area_code,extra\n" +
		"Lead frio,01/10/24,Sem interesse,abc,Bruno,31,x\n"

	rows, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "Lead frio", rows[0].Status)
	require.Equal(t, "01/10/24", rows[0].CreatedAt)
	require.Equal(t, 0, rows[0].UserMessageCount)
	require.Equal(t, "31", rows[0].AreaCode)
	require.Empty(t, rows[0].Phone)
}

func TestRead_MissingColumn(t *testing.T) {
	in := "status,summary,user_message_count,user_name,area_code\n"
	_, err := Read(strings.NewReader(in))

	var mc *MissingColumnError
	require.True(t, errors.As(err, &mc))
	require.Equal(t, ColCreatedAt, mc.Column)
	require.Equal(t, []string{"status", "summary", "user_message_count", "user_name", "area_code"}, mc.Available)
	require.Contains(t, err.Error(), "available columns: status, summary")
}

func TestRead_Empty(t *testing.T) {
	_, err := Read(strings.NewReader(""))
	var mc *MissingColumnError
	require.True(t, errors.As(err, &mc))
}

func TestRead_ShortRecord(t *testing.T) {
	in := strings.Join(Header, ",") + "\nfalse,11987654321,12/10/24 09:35:55\n"
	rows, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "11987654321", rows[0].Phone)
	require.Empty(t, rows[0].Status)
}
