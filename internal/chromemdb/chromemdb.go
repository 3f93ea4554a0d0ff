package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"clarity/internal/config"
	"clarity/internal/helper"
	"clarity/internal/models"
)

var ErrEncryptionKey = errors.New("encryption key must be 32 bytes")

// VectorDBManager keeps one chromem collection per user notebook.
type VectorDBManager struct {
	db            *chromem.DB
	dbPath        string
	compress      bool
	encryptionKey string

	// mu serialises collection creation and deletion.
	mu sync.Mutex
}

// NewVectorDBManager opens a persistent DB at cfg.Path, or an in-memory one when cfg.InMemory is set.
func NewVectorDBManager(cfg config.VectorStoreConfig, encryptionKey string) (*VectorDBManager, error) {
	if encryptionKey != "" && len(encryptionKey) != 32 {
		return nil, ErrEncryptionKey
	}

	var db *chromem.DB
	if cfg.InMemory {
		db = chromem.NewDB()
	} else {
		path := helper.ExpandHome(cfg.Path)
		if err := helper.CreateFolder(path); err != nil {
			return nil, err
		}
		var err error
		db, err = chromem.NewPersistentDB(path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}
	log.Info().Str("path", cfg.Path).Bool("in_memory", cfg.InMemory).Msg("Opened vector database")

	return &VectorDBManager{
		db:            db,
		dbPath:        cfg.Path,
		compress:      cfg.Compress,
		encryptionKey: encryptionKey,
	}, nil
}

func (m *VectorDBManager) getOrCreateCollection(userID, notebookID string) (*chromem.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := helper.CollectionName(userID, notebookID)
	meta := map[string]string{models.MetaUserID: userID, models.MetaNotebookID: notebookID}
	c, err := m.db.GetOrCreateCollection(name, meta, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	return c, nil
}

// userCollections returns the notebook collection, or every collection of the user when notebookID is empty.
func (m *VectorDBManager) userCollections(userID, notebookID string) []*chromem.Collection {
	if notebookID != "" {
		if c := m.db.GetCollection(helper.CollectionName(userID, notebookID), nil); c != nil {
			return []*chromem.Collection{c}
		}
		return nil
	}
	var out []*chromem.Collection
	for name, c := range m.db.ListCollections() {
		if helper.IsUserCollection(name, userID) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AddChunks stores embedded chunks in the notebook collection.
func (m *VectorDBManager) AddChunks(ctx context.Context, userID, notebookID string, chunks []models.ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}
	c, err := m.getOrCreateCollection(userID, notebookID)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, len(chunks))
	for i, ch := range chunks {
		docs[i] = chromem.Document{
			ID:        ch.ID,
			Content:   ch.Text,
			Embedding: ch.Embedding,
			Metadata: map[string]string{
				models.MetaDocumentID: ch.DocumentID,
				models.MetaNotebookID: notebookID,
				models.MetaTitle:      ch.Title,
				models.MetaChunkIndex: strconv.Itoa(ch.Index),
				models.MetaCharStart:  strconv.Itoa(ch.CharStart),
				models.MetaCharEnd:    strconv.Itoa(ch.CharEnd),
			},
		}
	}
	if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	log.Debug().Str("collection", c.Name).Int("chunks", len(docs)).Msg("Added chunks")
	return nil
}

// Query returns up to topK nearest chunks, best first. A missing collection yields no results.
func (m *VectorDBManager) Query(ctx context.Context, userID, notebookID string, embedding []float32, topK int) ([]models.SourceChunk, error) {
	if topK <= 0 {
		return nil, nil
	}
	var results []models.SourceChunk
	for _, c := range m.userCollections(userID, notebookID) {
		n := min(topK, c.Count())
		if n == 0 {
			continue
		}
		res, err := c.QueryEmbedding(ctx, embedding, n, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to query by similarity: %w", err)
		}
		for _, r := range res {
			results = append(results, models.SourceChunk{
				ID:       r.ID,
				Text:     r.Content,
				Score:    r.Similarity,
				Metadata: r.Metadata,
			})
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// DeleteDocument removes every chunk of one document.
func (m *VectorDBManager) DeleteDocument(ctx context.Context, userID, notebookID, documentID string) error {
	for _, c := range m.userCollections(userID, notebookID) {
		if err := c.Delete(ctx, map[string]string{models.MetaDocumentID: documentID}, nil); err != nil {
			return fmt.Errorf("failed to delete document chunks: %w", err)
		}
	}
	return nil
}

// DeleteNotebook drops the notebook collection.
func (m *VectorDBManager) DeleteNotebook(_ context.Context, userID, notebookID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.db.DeleteCollection(helper.CollectionName(userID, notebookID)); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// Count returns the number of chunks stored for the notebook, or for the user when notebookID is empty.
func (m *VectorDBManager) Count(_ context.Context, userID, notebookID string) (int, error) {
	total := 0
	for _, c := range m.userCollections(userID, notebookID) {
		total += c.Count()
	}
	return total, nil
}

// Collections lists the collection names owned by userID.
func (m *VectorDBManager) Collections(userID string) []string {
	cs := m.userCollections(userID, "")
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Name
	}
	return names
}

// Export writes the user's collections to filePath, encrypted when a key is configured.
func (m *VectorDBManager) Export(_ context.Context, filePath, userID string) error {
	names := m.Collections(userID)
	if len(names) == 0 {
		return fmt.Errorf("no collections for user %s", userID)
	}
	log.Debug().Str("file", filePath).Strs("collections", names).Bool("compress", m.compress).Msg("Exporting collections")
	if err := m.db.ExportToFile(filePath, m.compress, m.encryptionKey, names...); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import loads collections previously written by Export.
func (m *VectorDBManager) Import(_ context.Context, filePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.db.ImportFromFile(filePath, m.encryptionKey); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	return nil
}
