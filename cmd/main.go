package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"clarity/internal/chromemdb"
	"clarity/internal/chunker"
	"clarity/internal/config"
	"clarity/internal/db"
	"clarity/internal/embedding"
	"clarity/internal/helper"
	"clarity/internal/llmservice"
	"clarity/internal/models"
	"clarity/internal/parser"
	"clarity/internal/rag"
	"clarity/internal/scheduler"
	"clarity/internal/study"
	"clarity/internal/syncservice"
	"clarity/internal/tui"
)

const configFilePath = "./configs/config.yaml"

var (
	heading = color.New(color.FgCyan, color.Bold)
	muted   = color.New(color.FgHiBlack)
	good    = color.New(color.FgGreen)
)

type app struct {
	cfg      *config.Config
	vectors  rag.VectorStore
	chroma   *chromemdb.VectorDBManager
	bunDB    *bun.DB
	records  *db.Store
	rag      *rag.Service
	user     string
	notebook string
}

func main() {
	configPath := flag.String("config", configFilePath, "Path to the config file")
	user := flag.String("user", "local", "User id that owns the data")
	notebook := flag.String("notebook", "default", "Notebook id")
	filePath := flag.String("file", "", "Path to a document to ingest")
	query := flag.String("query", "", "Question to answer from the notebook")
	allNotebooks := flag.Bool("all", false, "Search every notebook of the user")
	quiz := flag.String("quiz", "", "Generate a quiz on this topic")
	difficulty := flag.String("difficulty", "medium", "Quiz difficulty")
	topics := flag.Bool("topics", false, "Suggest quiz topics for the notebook")
	deck := flag.String("deck", "", "Create a flashcard deck with this name from the notebook")
	cards := flag.Int("cards", study.DefaultDeckCards, "Number of flashcards to generate")
	studyDeck := flag.String("study", "", "Study the deck with this id")
	practice := flag.Bool("practice", false, "Study cards that are not due yet")
	mindMap := flag.Int("mindmap", 0, "Generate a mind map with this many levels (1-5)")
	explain := flag.String("explain", "", "Explain a mind map node label from the notebook")
	exportFile := flag.String("export", "", "Export the user's vector collections to this file")
	importFile := flag.String("import", "", "Import vector collections from this file")
	syncPush := flag.String("sync-push", "", "Push this document's text to the sync service as the notebook")
	syncPull := flag.Bool("sync-pull", false, "Pull synced notebooks and index them locally")
	initDB := flag.Bool("init-db", false, "Create the database tables")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	helper.SetupLogger(cfg.Log.Level, cfg.Log.Pretty)
	log.Debug().Interface("config", cfg.Redacted()).Msg("Loaded config")

	ctx := context.Background()
	a, err := newApp(ctx, cfg, *user, *notebook)
	if err != nil {
		log.Fatal().Err(err).Msg("Error starting clarity")
	}
	defer a.close()

	nb := a.notebook
	if *allNotebooks {
		nb = ""
	}

	switch {
	case *initDB:
		err = a.initDB(ctx)
	case *filePath != "":
		err = a.ingest(ctx, *filePath)
	case *query != "":
		err = a.ask(ctx, nb, *query)
	case *quiz != "":
		err = a.quiz(ctx, *quiz, *difficulty)
	case *topics:
		err = a.topics(ctx)
	case *deck != "":
		err = a.createDeck(ctx, *deck, *cards)
	case *studyDeck != "":
		err = a.study(ctx, *studyDeck, *practice)
	case *mindMap > 0:
		err = a.mindMap(ctx, *mindMap)
	case *explain != "":
		err = a.explain(ctx, *explain)
	case *exportFile != "":
		err = a.exportVectors(ctx, *exportFile)
	case *importFile != "":
		err = a.importVectors(ctx, *importFile)
	case *syncPush != "":
		err = a.push(ctx, *syncPush)
	case *syncPull:
		err = a.pull(ctx)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

func newApp(ctx context.Context, cfg *config.Config, user, notebook string) (*app, error) {
	a := &app{cfg: cfg, user: user, notebook: notebook}

	if cfg.Database.DSN != "" {
		sqldb, err := db.ConnectDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("error connecting to database: %w", err)
		}
		a.bunDB = db.NewDB(sqldb, cfg.Database.Debug)
		a.records = db.NewStore(a.bunDB)
	}

	switch cfg.VectorStore.Type {
	case "pgvector":
		if a.bunDB == nil {
			return nil, fmt.Errorf("%w: pgvector needs database.dsn", config.ErrInvalidConfig)
		}
		a.vectors = db.NewVectorStore(a.bunDB)
	default:
		chroma, err := chromemdb.NewVectorDBManager(cfg.VectorStore, cfg.RAG.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("error creating vector database manager: %w", err)
		}
		a.chroma, a.vectors = chroma, chroma
	}

	embedder, err := embedding.New(&cfg.EmbedLLM)
	if err != nil {
		return nil, fmt.Errorf("error initializing embedder: %w", err)
	}
	llm, err := llmservice.New(&cfg.InferenceLLM)
	if err != nil {
		return nil, fmt.Errorf("error initializing llm: %w", err)
	}
	splitter, err := chunker.NewSplitter(cfg.RAG.ChunkStrategy, chunker.Config{
		ChunkSize:    cfg.RAG.ChunkSize,
		ChunkOverlap: cfg.RAG.ChunkOverlap,
		Counter:      chunker.NewCounter(cfg.RAG.Tokenizer),
	})
	if err != nil {
		return nil, fmt.Errorf("error initializing chunker: %w", err)
	}

	opts := []rag.Option{
		rag.WithTopK(cfg.RAG.TopK),
		rag.WithBatchSize(cfg.EmbedLLM.BatchSize),
		rag.WithChunkContext(cfg.RAG.ChunkContext),
	}
	if a.records != nil {
		opts = append(opts, rag.WithCatalog(documentCatalog{a.records}))
	}
	a.rag = rag.NewService(a.vectors, embedder, llm, splitter, opts...)
	log.Debug().Str("model", a.rag.ModelName()).Str("store", cfg.VectorStore.Type).Msg("Clarity ready")
	return a, nil
}

func (a *app) close() {
	if a.bunDB != nil {
		a.bunDB.Close()
	}
}

func (a *app) needRecords() error {
	if a.records == nil {
		return fmt.Errorf("%w: this command needs database.dsn", config.ErrInvalidConfig)
	}
	return nil
}

func (a *app) initDB(ctx context.Context) error {
	if err := a.needRecords(); err != nil {
		return err
	}
	return db.InitDB(ctx, a.bunDB, a.cfg.VectorStore.Type == "pgvector")
}

// ensureNotebook creates the notebook row the first time it is used.
func ensureNotebook(ctx context.Context, store *db.Store, userID, notebookID string) error {
	_, err := store.GetNotebook(ctx, userID, notebookID)
	if errors.Is(err, db.ErrNotFound) {
		return store.CreateNotebook(ctx, &db.Notebook{ID: notebookID, UserID: userID, Name: notebookID})
	}
	return err
}

// documentCatalog records ingested documents as rows of the notebook.
type documentCatalog struct {
	store *db.Store
}

func (c documentCatalog) FindDocument(ctx context.Context, userID, notebookID, hash string) (string, bool, error) {
	doc, err := c.store.FindDocumentByHash(ctx, userID, notebookID, hash)
	if errors.Is(err, db.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return doc.ID, true, nil
}

func (c documentCatalog) RecordDocument(ctx context.Context, userID, notebookID string, res *rag.IngestResult) (string, bool, error) {
	if err := ensureNotebook(ctx, c.store, userID, notebookID); err != nil {
		return "", false, err
	}
	doc, created, err := c.store.AddDocument(ctx, &db.Document{
		ID:          res.DocumentID,
		UserID:      userID,
		NotebookID:  notebookID,
		Title:       res.Title,
		ContentHash: res.Hash,
		Chars:       res.Chars,
		Chunks:      res.Chunks,
	})
	if err != nil {
		return "", false, err
	}
	return doc.ID, created, nil
}

func (a *app) ingest(ctx context.Context, path string) error {
	res, err := a.rag.Ingest(ctx, rag.IngestRequest{UserID: a.user, NotebookID: a.notebook, Path: path})
	if err != nil {
		return err
	}
	if res.Duplicate {
		muted.Printf("%s is already in notebook %s (document %s)\n", res.Title, a.notebook, res.DocumentID)
		return nil
	}
	good.Printf("Ingested %s: %d chunks, %d characters (document %s)\n", res.Title, res.Chunks, res.Chars, res.DocumentID)
	return nil
}

func (a *app) ask(ctx context.Context, notebookID, question string) error {
	heading.Println("Question")
	fmt.Printf("%s\n\n", question)
	heading.Println("Assistant")

	ans, err := a.rag.Ask(ctx, rag.AskRequest{
		UserID:     a.user,
		NotebookID: notebookID,
		Question:   question,
		Stream:     func(chunk string) { fmt.Print(chunk) },
	})
	if err != nil {
		return err
	}
	if len(ans.Sources) == 0 {
		fmt.Print(ans.Answer)
	}
	fmt.Printf("\n\n")

	if len(ans.Sources) > 0 {
		heading.Println("Sources")
		for i, s := range ans.Sources {
			muted.Printf("[%d] %s (score %.3f)\n", i+1, s.Metadata[models.MetaTitle], s.Score)
			fmt.Printf("    %s\n", helper.Truncate(strings.Join(strings.Fields(s.Text), " "), 160))
		}
	}

	if a.records != nil && notebookID != "" {
		if err := a.records.SaveConversation(ctx, &db.Conversation{
			UserID:     a.user,
			NotebookID: notebookID,
			Question:   question,
			Answer:     ans.Answer,
			Sources:    ans.Sources,
			Model:      ans.Model,
		}); err != nil {
			log.Warn().Err(err).Msg("Could not save conversation")
		}
	}
	return nil
}

func (a *app) quiz(ctx context.Context, topic, difficulty string) error {
	q, err := a.rag.GenerateQuiz(ctx, rag.QuizRequest{UserID: a.user, NotebookID: a.notebook, Topic: topic, Difficulty: difficulty})
	if err != nil {
		return err
	}
	heading.Printf("%s (%s)\n\n", q.Title, q.Difficulty)
	for i, question := range q.Questions {
		fmt.Printf("%d. %s\n", i+1, question.Question)
		for j, opt := range question.Options {
			marker := " "
			if j == question.CorrectAnswer {
				marker = "*"
			}
			fmt.Printf("   %s %c) %s\n", marker, 'A'+j, opt)
		}
		muted.Printf("   %s\n\n", question.Explanation)
	}
	if a.records != nil {
		return a.records.SaveQuiz(ctx, &db.Quiz{
			UserID:     a.user,
			NotebookID: a.notebook,
			Title:      q.Title,
			Topic:      q.Topic,
			Difficulty: q.Difficulty,
			Questions:  q.Questions,
		})
	}
	return nil
}

func (a *app) topics(ctx context.Context) error {
	topics, err := a.rag.SuggestTopics(ctx, a.user, a.notebook)
	if err != nil {
		return err
	}
	if len(topics) == 0 {
		muted.Println("No documents in this notebook yet.")
		return nil
	}
	heading.Println("Suggested topics")
	for _, t := range topics {
		fmt.Printf("- %s\n", t)
	}
	return nil
}

func (a *app) createDeck(ctx context.Context, name string, n int) error {
	if err := a.needRecords(); err != nil {
		return err
	}
	svc := study.NewService(a.records, a.rag)
	deck, cards, err := svc.CreateDeckFromNotebook(ctx, a.user, a.notebook, name, n, time.Now().UTC())
	if err != nil {
		return err
	}
	good.Printf("Created deck %q (%s) with %d cards\n", deck.Name, deck.ID, len(cards))
	for _, c := range cards {
		fmt.Printf("- %s\n", c.Front)
	}
	return nil
}

func (a *app) study(ctx context.Context, deckID string, practice bool) error {
	if err := a.needRecords(); err != nil {
		return err
	}
	deck, err := a.records.GetDeck(ctx, a.user, deckID)
	if err != nil {
		return err
	}
	svc := study.NewService(a.records, a.rag)
	queue, err := svc.StudyQueue(ctx, a.user, deckID, study.DefaultQueueLimit, practice, time.Now().UTC())
	if err != nil {
		return err
	}

	rater := tui.RaterFunc(func(cardID string, r scheduler.Rating) (*study.CardView, error) {
		return svc.RateCard(ctx, a.user, cardID, r.String(), time.Now().UTC())
	})
	if _, err := tea.NewProgram(tui.New(rater, deck.Name, queue), tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("study session failed: %w", err)
	}

	stats, err := a.records.DeckStats(ctx, a.user, deckID, time.Now().UTC())
	if err != nil {
		return err
	}
	good.Printf("%s: %d cards, %d new, %d due, %d mastered\n", deck.Name, stats.Total, stats.New, stats.Due, stats.Mastered)
	return nil
}

func (a *app) mindMap(ctx context.Context, depth int) error {
	mm, err := a.rag.GenerateMindMap(ctx, a.user, a.notebook, depth)
	if err != nil {
		return err
	}
	heading.Printf("Mind map: %d nodes, depth %d\n", len(mm.Nodes), mm.Depth)
	for _, n := range mm.Nodes {
		fmt.Printf("%s- %s", strings.Repeat("  ", n.Depth), n.Label)
		muted.Printf(" [%s, %d links]\n", n.ID, n.Connections)
	}
	if a.records != nil {
		return a.records.SaveMindMap(ctx, &db.MindMap{
			UserID:     a.user,
			NotebookID: a.notebook,
			Title:      mm.Nodes[0].Label,
			Nodes:      mm.Nodes,
			Edges:      mm.Edges,
			Depth:      mm.Depth,
			MaxDepth:   llmservice.ClampDepth(depth),
		})
	}
	return nil
}

func (a *app) explain(ctx context.Context, label string) error {
	d, err := a.rag.ExplainNode(ctx, a.user, a.notebook, models.MindMapNode{Label: label, Content: label})
	if err != nil {
		return err
	}
	heading.Println(d.Label)
	fmt.Printf("%s\n\n", d.Summary)
	for _, e := range d.Details {
		muted.Printf("%s: ", e.Source)
		fmt.Println(e.Content)
	}
	return nil
}

func (a *app) exportVectors(ctx context.Context, file string) error {
	if a.chroma == nil {
		return fmt.Errorf("%w: export needs the chromem vector store", config.ErrInvalidConfig)
	}
	if err := a.chroma.Export(ctx, file, a.user); err != nil {
		return err
	}
	good.Printf("Exported %d collections to %s\n", len(a.chroma.Collections(a.user)), file)
	return nil
}

func (a *app) importVectors(ctx context.Context, file string) error {
	if a.chroma == nil {
		return fmt.Errorf("%w: import needs the chromem vector store", config.ErrInvalidConfig)
	}
	if err := a.chroma.Import(ctx, file); err != nil {
		return err
	}
	good.Printf("Imported %s\n", file)
	return nil
}

func (a *app) syncClient() (*syncservice.Client, error) {
	if a.cfg.Sync.BaseURL == "" {
		return nil, fmt.Errorf("%w: sync.base_url is not set", config.ErrInvalidConfig)
	}
	return syncservice.NewClient(a.cfg.Sync.BaseURL, a.user, a.cfg.Sync.Token), nil
}

// push uploads the document text as the notebook content, then the notebook's saved conversations.
func (a *app) push(ctx context.Context, path string) error {
	client, err := a.syncClient()
	if err != nil {
		return err
	}
	text, err := parser.ExtractText(path)
	if err != nil {
		return err
	}
	ack, err := client.PushNotebook(ctx, syncservice.NotebookRequest{
		ID:       a.notebook,
		Title:    filepath.Base(path),
		Content:  text,
		DeviceID: a.cfg.Sync.DeviceID,
	})
	if err != nil {
		return err
	}

	pushed := 0
	if a.records != nil {
		convs, err := a.records.ListConversations(ctx, a.user, a.notebook, 0)
		if err != nil {
			return err
		}
		for _, c := range convs {
			if err := client.PushConversation(ctx, syncservice.ConversationRequest{
				ID: c.ID, NotebookID: c.NotebookID, Question: c.Question, Answer: c.Answer,
			}); err != nil {
				return err
			}
			pushed++
		}
	}
	good.Printf("Synced notebook %s (%d conversations)\n", ack.NotebookID, pushed)
	return nil
}

// pull indexes every synced notebook locally. Vectors never leave the device, so they are rebuilt here.
func (a *app) pull(ctx context.Context) error {
	client, err := a.syncClient()
	if err != nil {
		return err
	}
	nbs, err := client.PullNotebooks(ctx)
	if err != nil {
		return err
	}
	for _, nb := range nbs {
		if err := parser.CheckText(nb.Content); err != nil {
			log.Warn().Str("notebook", nb.ID).Msg("Skipping synced notebook without text")
			continue
		}
		if a.records == nil {
			if err := a.rag.DeleteNotebook(ctx, a.user, nb.ID); err != nil {
				return err
			}
		}
		res, err := a.rag.Ingest(ctx, rag.IngestRequest{
			UserID:     a.user,
			NotebookID: nb.ID,
			DocumentID: helper.ContentHash(nb.Content)[:16],
			Title:      nb.Title,
			Text:       nb.Content,
		})
		if err != nil {
			return err
		}
		if res.Duplicate {
			muted.Printf("%s (%s) is up to date\n", nb.Title, nb.ID)
			continue
		}
		if err := a.pruneDocuments(ctx, nb.ID, res.DocumentID); err != nil {
			return err
		}
		good.Printf("Pulled %s (%s): %d chunks\n", nb.Title, nb.ID, res.Chunks)
	}
	muted.Printf("%d notebooks pulled\n", len(nbs))
	return nil
}

// pruneDocuments removes every document of the notebook except keep, rows and chunks alike.
func (a *app) pruneDocuments(ctx context.Context, notebookID, keep string) error {
	if a.records == nil {
		return nil
	}
	docs, err := a.records.ListDocuments(ctx, a.user, notebookID)
	if err != nil {
		return err
	}
	for _, d := range docs {
		if d.ID == keep {
			continue
		}
		if err := a.rag.DeleteDocument(ctx, a.user, notebookID, d.ID); err != nil {
			return err
		}
		if err := a.records.DeleteDocument(ctx, a.user, d.ID); err != nil {
			return err
		}
	}
	return nil
}
