package study

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"clarity/internal/db"
	"clarity/internal/models"
	"clarity/internal/scheduler"
)

const (
	DefaultQueueLimit = 20
	DefaultDeckCards  = 10
)

var ErrNoCards = errors.New("no flashcards generated")

// CardStore is the part of db.Store the study service needs.
type CardStore interface {
	GetCard(ctx context.Context, userID, id string) (*db.Card, error)
	SaveCardState(ctx context.Context, card *db.Card) error
	DueCards(ctx context.Context, userID, deckID string, now time.Time, limit int, practice bool) ([]db.Card, error)
	CreateDeckWithCards(ctx context.Context, deck *db.Deck, cards []*db.Card, now time.Time) error
}

// CardGenerator drafts flashcards from a notebook. rag.Service satisfies it.
type CardGenerator interface {
	GenerateFlashcards(ctx context.Context, userID, notebookID string, n int) ([]models.CardDraft, error)
}

// CardView is a card with its study status at the time it was loaded.
type CardView struct {
	db.Card
	IsNew      bool `json:"isNew"`
	IsDue      bool `json:"isDue"`
	IsMastered bool `json:"isMastered"`
}

func NewCardView(c db.Card, now time.Time) CardView {
	s := c.State()
	return CardView{
		Card:       c,
		IsNew:      s.IsNew(),
		IsDue:      s.IsDue(now),
		IsMastered: s.IsMastered(),
	}
}

type Service struct {
	store CardStore
	gen   CardGenerator
}

func NewService(store CardStore, gen CardGenerator) *Service {
	return &Service{store: store, gen: gen}
}

// RateCard applies one review button to the user's card at now and persists the new schedule.
func (s *Service) RateCard(ctx context.Context, userID, cardID, rating string, now time.Time) (*CardView, error) {
	r, err := scheduler.ParseRating(rating)
	if err != nil {
		return nil, err
	}
	card, err := s.store.GetCard(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}
	next, err := scheduler.Review(card.State(), r.Quality(), now)
	if err != nil {
		return nil, err
	}
	card.SetState(next)
	if err := s.store.SaveCardState(ctx, card); err != nil {
		return nil, err
	}
	log.Debug().
		Str("card", cardID).
		Str("rating", r.String()).
		Int("interval", next.Interval).
		Float64("ease", next.EaseFactor).
		Msg("Reviewed card")

	view := NewCardView(*card, now)
	return &view, nil
}

// StudyQueue returns the cards to study now. Practice mode includes cards that are not yet due.
func (s *Service) StudyQueue(ctx context.Context, userID, deckID string, limit int, practice bool, now time.Time) ([]CardView, error) {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	cards, err := s.store.DueCards(ctx, userID, deckID, now, limit, practice)
	if err != nil {
		return nil, err
	}
	views := make([]CardView, len(cards))
	for i, c := range cards {
		views[i] = NewCardView(c, now)
	}
	return views, nil
}

// CreateDeckFromNotebook drafts n flashcards from the notebook and stores them in a new deck.
func (s *Service) CreateDeckFromNotebook(ctx context.Context, userID, notebookID, name string, n int, now time.Time) (*db.Deck, []*db.Card, error) {
	if n <= 0 {
		n = DefaultDeckCards
	}
	drafts, err := s.gen.GenerateFlashcards(ctx, userID, notebookID, n)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate flashcards: %w", err)
	}
	cards := make([]*db.Card, 0, len(drafts))
	for _, d := range drafts {
		front, back := strings.TrimSpace(d.Front), strings.TrimSpace(d.Back)
		if front == "" || back == "" {
			continue
		}
		cards = append(cards, &db.Card{Front: front, Back: back})
	}
	if len(cards) == 0 {
		return nil, nil, ErrNoCards
	}

	if strings.TrimSpace(name) == "" {
		name = "Deck " + now.Format("2006-01-02 15:04")
	}
	deck := &db.Deck{UserID: userID, NotebookID: notebookID, Name: name}
	if err := s.store.CreateDeckWithCards(ctx, deck, cards, now); err != nil {
		return nil, nil, err
	}
	log.Info().Str("deck", deck.ID).Int("cards", len(cards)).Msg("Created deck from notebook")
	return deck, cards, nil
}
