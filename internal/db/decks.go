package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"clarity/internal/helper"
	"clarity/internal/scheduler"
)

func (s *Store) CreateDeck(ctx context.Context, deck *Deck) error {
	return insertDeck(ctx, s.db, deck, time.Now().UTC())
}

// CreateDeckWithCards stores a new deck and its cards in one transaction.
func (s *Store) CreateDeckWithCards(ctx context.Context, deck *Deck, cards []*Card, now time.Time) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := insertDeck(ctx, tx, deck, now); err != nil {
			return err
		}
		return insertCards(ctx, tx, deck.UserID, deck.ID, cards, now)
	})
}

func insertDeck(ctx context.Context, idb bun.IDB, deck *Deck, now time.Time) error {
	deck.Name = strings.TrimSpace(deck.Name)
	if deck.UserID == "" || deck.Name == "" {
		return fmt.Errorf("deck needs a user and a name")
	}
	if deck.ID == "" {
		deck.ID = helper.NewID()
	}
	deck.CreatedAt, deck.UpdatedAt = now, now
	if _, err := idb.NewInsert().Model(deck).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create deck: %w", err)
	}
	return nil
}

func (s *Store) GetDeck(ctx context.Context, userID, id string) (*Deck, error) {
	deck := new(Deck)
	if err := s.db.NewSelect().Model(deck).
		Where("dk.id = ?", id).
		Where("dk.user_id = ?", userID).
		Scan(ctx); err != nil {
		return nil, notFound(err, "deck "+id)
	}
	return deck, nil
}

func (s *Store) ListDecks(ctx context.Context, userID string) ([]Deck, error) {
	var decks []Deck
	if err := s.db.NewSelect().Model(&decks).
		Where("dk.user_id = ?", userID).
		Order("dk.updated_at DESC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list decks: %w", err)
	}
	return decks, nil
}

func (s *Store) RenameDeck(ctx context.Context, userID, id, name, description string) error {
	res, err := s.db.NewUpdate().Model((*Deck)(nil)).
		Set("name = ?", strings.TrimSpace(name)).
		Set("description = ?", description).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update deck: %w", err)
	}
	return checkAffected(res, "deck "+id)
}

// DeleteDeck removes the deck and all of its cards.
func (s *Store) DeleteDeck(ctx context.Context, userID, id string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*Card)(nil)).
			Where("deck_id = ?", id).
			Where("user_id = ?", userID).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to delete cards: %w", err)
		}
		res, err := tx.NewDelete().Model((*Deck)(nil)).
			Where("id = ?", id).
			Where("user_id = ?", userID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete deck: %w", err)
		}
		return checkAffected(res, "deck "+id)
	})
}

// DeckStats counts the deck's cards by study status at now.
func (s *Store) DeckStats(ctx context.Context, userID, deckID string, now time.Time) (*DeckStats, error) {
	stats := new(DeckStats)
	err := s.db.NewSelect().
		Model((*Card)(nil)).
		ColumnExpr("count(*) AS total").
		ColumnExpr("count(*) FILTER (WHERE c.repetitions = 0) AS new_cards").
		ColumnExpr("count(*) FILTER (WHERE c.next_review <= ?) AS due", now).
		ColumnExpr("count(*) FILTER (WHERE c.repetitions >= 3 AND c.ease_factor >= ? AND c.interval_days >= 7) AS mastered",
			scheduler.DefaultEaseFactor).
		Where("c.user_id = ?", userID).
		Where("c.deck_id = ?", deckID).
		Scan(ctx, &stats.Total, &stats.New, &stats.Due, &stats.Mastered)
	if err != nil {
		return nil, fmt.Errorf("failed to compute deck stats: %w", err)
	}
	return stats, nil
}

// AddCards inserts cards into a deck, giving unset cards a fresh schedule due at now.
func (s *Store) AddCards(ctx context.Context, userID, deckID string, cards []*Card, now time.Time) error {
	if len(cards) == 0 {
		return nil
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return insertCards(ctx, tx, userID, deckID, cards, now)
	})
}

// insertCards schedules unscheduled cards as new, inserts them and touches the deck.
func insertCards(ctx context.Context, idb bun.IDB, userID, deckID string, cards []*Card, now time.Time) error {
	if len(cards) == 0 {
		return nil
	}
	for _, c := range cards {
		if c.ID == "" {
			c.ID = helper.NewID()
		}
		c.UserID, c.DeckID = userID, deckID
		if c.EaseFactor == 0 {
			c.SetState(scheduler.NewState(now))
		}
		c.CreatedAt, c.UpdatedAt = now, now
	}
	if _, err := idb.NewInsert().Model(&cards).Exec(ctx); err != nil {
		return fmt.Errorf("failed to add cards: %w", err)
	}
	if _, err := idb.NewUpdate().Model((*Deck)(nil)).
		Set("updated_at = ?", now).
		Where("id = ?", deckID).
		Where("user_id = ?", userID).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to touch deck: %w", err)
	}
	return nil
}

func (s *Store) GetCard(ctx context.Context, userID, id string) (*Card, error) {
	card := new(Card)
	if err := s.db.NewSelect().Model(card).
		Where("c.id = ?", id).
		Where("c.user_id = ?", userID).
		Scan(ctx); err != nil {
		return nil, notFound(err, "card "+id)
	}
	return card, nil
}

// CardsByIDs loads the user's cards with the given ids in no particular order.
func (s *Store) CardsByIDs(ctx context.Context, userID string, ids []string) ([]Card, error) {
	var cards []Card
	if len(ids) == 0 {
		return cards, nil
	}
	if err := s.db.NewSelect().Model(&cards).
		Where("c.user_id = ?", userID).
		Where("c.id = ANY(?)", pq.Array(ids)).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to load cards: %w", err)
	}
	return cards, nil
}

func (s *Store) ListCards(ctx context.Context, userID, deckID string) ([]Card, error) {
	var cards []Card
	if err := s.db.NewSelect().Model(&cards).
		Where("c.user_id = ?", userID).
		Where("c.deck_id = ?", deckID).
		Order("c.created_at ASC", "c.id ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	return cards, nil
}

// DueCards returns up to limit cards of the deck ordered by next review. Outside practice mode only
// cards due at now are returned.
func (s *Store) DueCards(ctx context.Context, userID, deckID string, now time.Time, limit int, practice bool) ([]Card, error) {
	var cards []Card
	q := s.db.NewSelect().Model(&cards).
		Where("c.user_id = ?", userID).
		Where("c.deck_id = ?", deckID)
	if !practice {
		q = q.Where("c.next_review <= ?", now)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Order("c.next_review ASC", "c.id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to load due cards: %w", err)
	}
	return cards, nil
}

func (s *Store) UpdateCardContent(ctx context.Context, userID, id, front, back string) error {
	res, err := s.db.NewUpdate().Model((*Card)(nil)).
		Set("front = ?", front).
		Set("back = ?", back).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update card: %w", err)
	}
	return checkAffected(res, "card "+id)
}

// SaveCardState persists the scheduling columns of card.
func (s *Store) SaveCardState(ctx context.Context, card *Card) error {
	card.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().Model(card).
		Column("ease_factor", "interval_days", "repetitions", "next_review", "last_reviewed", "updated_at").
		Where("c.id = ?", card.ID).
		Where("c.user_id = ?", card.UserID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save card state: %w", err)
	}
	return checkAffected(res, "card "+card.ID)
}

func (s *Store) DeleteCard(ctx context.Context, userID, id string) error {
	res, err := s.db.NewDelete().Model((*Card)(nil)).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete card: %w", err)
	}
	return checkAffected(res, "card "+id)
}
