package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jjhmonolith/yurichatbot-localserver/internal/entity"
)

var testTime = time.Date(2024, 5, 1, 9, 30, 0, 123000000, time.UTC)

// openTestStore opens a store in a per-test temp directory and closes it when
// the test finishes.
func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func testTextbook(id string) entity.Textbook {
	return entity.Textbook{
		ID:        id,
		Title:     "수능특강 영어",
		Publisher: "EBS",
		Subject:   "영어",
		Level:     "고3",
		Grade:     "상",
		CreatedAt: testTime,
		UpdatedAt: testTime,
	}
}

func testPassageSet(id, accessCode string) entity.PassageSet {
	return entity.PassageSet{
		ID:         id,
		Title:      "지문 세트",
		Passage:    "The passage body.",
		Commentary: "해설",
		AccessCode: accessCode,
		CreatedAt:  testTime,
		UpdatedAt:  testTime,
	}
}

func testQuestion(id, passageSetID string) entity.Question {
	return entity.Question{
		ID:           id,
		PassageSetID: passageSetID,
		Position:     1,
		Prompt:       "빈칸에 들어갈 말로 가장 적절한 것은?",
		Options:      []string{"however", "therefore", "moreover", "instead", "likewise"},
		Answer:       "however",
		Explanation:  "역접 관계이므로 however가 적절하다.",
		CreatedAt:    testTime,
		UpdatedAt:    testTime,
	}
}

func testSystemPrompt(key string) entity.SystemPrompt {
	return entity.SystemPrompt{
		Key:         key,
		Name:        "기본 튜터",
		Description: "default tutoring persona",
		Content:     "You are a patient tutor.",
		Active:      true,
		Version:     1,
		CreatedAt:   testTime,
		UpdatedAt:   testTime,
	}
}
