package app

import (
	"context"
	"sort"
	"time"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/policy"
)

// Leaderboard ranks the completed attempts of a quiz. When the quiz hides
// results, only its author or an admin may view it.
func (s *AttemptService) Leaderboard(ctx context.Context, actor domain.Actor, quizID string, now time.Time) (domain.Leaderboard, error) {
	if err := s.authz.Authorize(actor, policy.ViewLeaderboard, policy.Resource{}); err != nil {
		return domain.Leaderboard{}, err
	}
	quiz, err := s.catalog.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	if quiz.Settings != nil && !quiz.Settings.ShowResults {
		if err := s.authz.Authorize(actor, policy.ViewHiddenResults, policy.Resource{AuthorID: quiz.AuthorID}); err != nil {
			return domain.Leaderboard{}, err
		}
	}

	attempts, err := s.attempts.ListCompleted(ctx, quiz.ID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return domain.Leaderboard{
		QuizID:    quiz.ID,
		Entries:   Rank(attempts),
		UpdatedAt: now,
	}, nil
}

// Rank orders graded attempts by score descending, then by earlier end time.
// Ranks are sequential: equal scores never share a rank.
func Rank(attempts []domain.Attempt) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(attempts))
	for _, a := range attempts {
		if a.Status != domain.AttemptCompleted || a.Score == nil || a.EndTime == nil {
			continue
		}
		entries = append(entries, domain.LeaderboardEntry{
			AttemptID:   a.ID,
			UserID:      a.UserID,
			Score:       *a.Score,
			CompletedAt: *a.EndTime,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if !entries[i].CompletedAt.Equal(entries[j].CompletedAt) {
			return entries[i].CompletedAt.Before(entries[j].CompletedAt)
		}
		return entries[i].AttemptID < entries[j].AttemptID
	})

	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
