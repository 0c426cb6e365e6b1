package importer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/textwave/textwave/utils"
)

func TestConfidenceTier(t *testing.T) {
	assert.Equal(t, ConfidenceHigh, confidenceTier(80))
	assert.Equal(t, ConfidenceHigh, confidenceTier(100))
	assert.Equal(t, ConfidenceMedium, confidenceTier(50))
	assert.Equal(t, ConfidenceMedium, confidenceTier(79.9))
	assert.Equal(t, ConfidenceLow, confidenceTier(20))
	assert.Equal(t, ConfidenceVeryLow, confidenceTier(19.9))
	assert.Equal(t, ConfidenceVeryLow, confidenceTier(0))
}

func TestScorePhoneColumn(t *testing.T) {
	validator := utils.NewPhoneValidator("US")
	phones := []string{"+14155552671", "415-555-2672", "(415) 555-2673"}

	t.Run("header bonus plus valid data", func(t *testing.T) {
		score := scorePhoneColumn("phone", phones, validator)
		assert.InDelta(t, 100, score, 0.01)
	})

	t.Run("valid data without header hint", func(t *testing.T) {
		score := scorePhoneColumn("col2", phones, validator)
		assert.InDelta(t, 80, score, 0.01)
	})

	t.Run("empty column keeps a sliver of the header bonus", func(t *testing.T) {
		score := scorePhoneColumn("mobile", []string{"", "  ", ""}, validator)
		assert.InDelta(t, 2, score, 0.01)
	})

	t.Run("suspicious values discount the data score", func(t *testing.T) {
		mixed := []string{"+14155552671", "a@b.com", "http://x.io", "hello there"}
		score := scorePhoneColumn("col3", mixed, validator)
		// one of four valid, three of four suspicious
		assert.InDelta(t, 0.25*80*0.3, score, 0.01)
	})

	t.Run("emails score near zero", func(t *testing.T) {
		emails := []string{"john@example.com", "jane@example.com"}
		assert.Less(t, scorePhoneColumn("email", emails, validator), 1.0)
	})
}

func TestScoreNameColumn(t *testing.T) {
	t.Run("typical full names with header", func(t *testing.T) {
		names := []string{"John Smith", "Jane Doe", "Alice Cooper"}
		score := scoreNameColumn("name", names)
		// header 30 + length 20 + spaces 15 + alpha 25 + pattern 10
		assert.InDelta(t, 100, score, 0.01)
	})

	t.Run("names without header hint still pass the threshold", func(t *testing.T) {
		names := []string{"John Smith", "Jane Doe"}
		score := scoreNameColumn("col1", names)
		assert.GreaterOrEqual(t, score, 50.0)
	})

	t.Run("empty column with header", func(t *testing.T) {
		score := scoreNameColumn("customer_name", []string{"", ""})
		assert.InDelta(t, 3, score, 0.01)
	})

	t.Run("all digit values clamp to zero", func(t *testing.T) {
		score := scoreNameColumn("col4", []string{"12345", "67890"})
		assert.Equal(t, 0.0, score)
	})

	t.Run("emails are penalized", func(t *testing.T) {
		emails := []string{"john@example.com", "jane@example.com"}
		score := scoreNameColumn("col5", emails)
		assert.Less(t, score, 20.0)
	})
}

func TestDetectColumns(t *testing.T) {
	validator := utils.NewPhoneValidator("US")

	t.Run("headers and clean data", func(t *testing.T) {
		headers := []string{"name", "phone", "email"}
		rows := [][]string{
			{"John Smith", "+14155552671", "john@example.com"},
			{"Jane Doe", "+14155552672", "jane@example.com"},
			{"Alice Cooper", "+14155552673", "alice@example.com"},
		}

		det := DetectColumns(headers, rows, validator)
		require.NotNil(t, det.Phone)
		assert.Equal(t, 1, det.Phone.Index)
		assert.Equal(t, "phone", det.Phone.Column)
		assert.Equal(t, ConfidenceHigh, det.Phone.Confidence)

		require.NotNil(t, det.Name)
		assert.Equal(t, 0, det.Name.Index)
		assert.Equal(t, "Phone column detected with high confidence.", det.Guidance)
	})

	t.Run("no header hints, data driven", func(t *testing.T) {
		headers := []string{"col1", "col2"}
		rows := [][]string{
			{"John Smith", "+14155552671"},
			{"Jane Doe", "+14155552672"},
		}

		det := DetectColumns(headers, rows, validator)
		require.NotNil(t, det.Phone)
		assert.Equal(t, 1, det.Phone.Index)
		require.NotNil(t, det.Name)
		assert.Equal(t, 0, det.Name.Index)
	})

	t.Run("phone column excluded from name candidates", func(t *testing.T) {
		// "contact" matches both the phone and name header patterns
		headers := []string{"contact", "notes"}
		rows := [][]string{
			{"+14155552671", "follow up tuesday 10am #441"},
			{"+14155552672", "asked about the oct pricing tier"},
		}

		det := DetectColumns(headers, rows, validator)
		require.NotNil(t, det.Phone)
		assert.Equal(t, 0, det.Phone.Index)
		if det.Name != nil {
			assert.NotEqual(t, det.Phone.Index, det.Name.Index)
		}
	})

	t.Run("runner-up candidates are capped", func(t *testing.T) {
		headers := make([]string, 5)
		row := make([]string, 5)
		for i := range headers {
			headers[i] = fmt.Sprintf("phone_%d", i)
			row[i] = fmt.Sprintf("+1415555%04d", i)
		}

		det := DetectColumns(headers, [][]string{row, row}, validator)
		require.NotNil(t, det.Phone)
		assert.Len(t, det.PhoneCandidates, 3)
		for _, cs := range det.PhoneCandidates {
			assert.NotEqual(t, det.Phone.Index, cs.Index)
		}
	})

	t.Run("no phone column", func(t *testing.T) {
		headers := []string{"name", "email"}
		rows := [][]string{
			{"John Smith", "john@example.com"},
			{"Jane Doe", "jane@example.com"},
		}

		det := DetectColumns(headers, rows, validator)
		assert.Nil(t, det.Phone)
		assert.Empty(t, det.PhoneCandidates)
		assert.Equal(t, "No phone column could be reliably detected. Provide an explicit column mapping.", det.Guidance)
	})

	t.Run("no rows", func(t *testing.T) {
		det := DetectColumns([]string{"phone"}, nil, validator)
		assert.Nil(t, det.Phone)
	})
}
