package syncservice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu       sync.Mutex
	users    map[string]*User
	nbs      map[string]map[string]Notebook
	convs    map[string][]Conversation
	settings map[string]Settings
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[string]*User{},
		nbs:      map[string]map[string]Notebook{},
		convs:    map[string][]Conversation{},
		settings: map[string]Settings{},
	}
}

func (m *memStore) EnsureUser(_ context.Context, id, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		m.users[id] = &User{ID: id, Email: email}
	}
	u := *m.users[id]
	return &u, nil
}

func (m *memStore) Counts(_ context.Context, userID string) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nbs[userID]), len(m.convs[userID]), nil
}

func (m *memStore) UpsertNotebook(_ context.Context, userID string, req NotebookRequest, now time.Time) (*Notebook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nbs[userID] == nil {
		m.nbs[userID] = map[string]Notebook{}
	}
	nb, ok := m.nbs[userID][req.ID]
	if !ok {
		nb = Notebook{ID: req.ID, UserID: userID, CreatedAt: now}
	}
	nb.Title, nb.Content, nb.DeviceID, nb.UpdatedAt = req.Title, req.Content, req.DeviceID, now
	m.nbs[userID][req.ID] = nb
	if u, ok := m.users[userID]; ok {
		u.LastSync = &now
	}
	return &nb, nil
}

func (m *memStore) ListNotebooks(_ context.Context, userID string) ([]Notebook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Notebook
	for _, nb := range m.nbs[userID] {
		out = append(out, nb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *memStore) GetNotebook(_ context.Context, userID, id string) (*Notebook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	nb, ok := m.nbs[userID][id]
	if !ok {
		return nil, ErrNotFound
	}
	return &nb, nil
}

func (m *memStore) DeleteNotebook(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nbs[userID][id]; !ok {
		return ErrNotFound
	}
	delete(m.nbs[userID], id)
	return nil
}

func (m *memStore) AddConversation(_ context.Context, userID string, req ConversationRequest, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.convs[userID] {
		if c.ID == req.ID {
			return false, nil
		}
	}
	m.convs[userID] = append(m.convs[userID], Conversation{
		ID: req.ID, UserID: userID, NotebookID: req.NotebookID, Question: req.Question, Answer: req.Answer, CreatedAt: now,
	})
	return true, nil
}

func (m *memStore) ListConversations(_ context.Context, userID, notebookID string) ([]Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Conversation
	for i := len(m.convs[userID]) - 1; i >= 0; i-- {
		c := m.convs[userID][i]
		if notebookID == "" || c.NotebookID == notebookID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) PutSettings(_ context.Context, userID, settingsJSON string, now time.Time) (*Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Settings{UserID: userID, SettingsJSON: settingsJSON, UpdatedAt: &now}
	m.settings[userID] = st
	return &st, nil
}

func (m *memStore) GetSettings(_ context.Context, userID string) (*Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.settings[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &st, nil
}

func newTestServer(t *testing.T, token string) (*httptest.Server, *memStore) {
	t.Helper()
	store := newMemStore()
	srv := NewServer(store, HeaderAuthenticator{Token: token})
	clock := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	srv.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, store
}

func TestSyncAPI(t *testing.T) {
	ctx := context.Background()
	ts, store := newTestServer(t, "")
	alice := NewClient(ts.URL+"/", "auth0|alice", "")
	bob := NewClient(ts.URL, "auth0|bob", "")

	t.Run("Health needs no identity", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	})

	t.Run("Missing identity is rejected", func(t *testing.T) {
		_, err := NewClient(ts.URL, "", "").Status(ctx)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("Notebooks upsert and stay per user", func(t *testing.T) {
		ack, err := alice.PushNotebook(ctx, NotebookRequest{ID: "nb1", Title: "Biology", Content: "# Cells", DeviceID: "laptop"})
		require.NoError(t, err)
		assert.Equal(t, "synced", ack.Status)
		assert.Equal(t, "nb1", ack.NotebookID)

		_, err = alice.PushNotebook(ctx, NotebookRequest{ID: "nb1", Title: "Cell Biology", Content: "# Cells v2", DeviceID: "phone"})
		require.NoError(t, err)
		_, err = alice.PushNotebook(ctx, NotebookRequest{ID: "nb2", Title: "Physics"})
		require.NoError(t, err)

		nbs, err := alice.PullNotebooks(ctx)
		require.NoError(t, err)
		require.Len(t, nbs, 2)
		assert.Equal(t, "nb2", nbs[0].ID)

		nb, err := alice.GetNotebook(ctx, "nb1")
		require.NoError(t, err)
		assert.Equal(t, "Cell Biology", nb.Title)
		assert.Equal(t, "phone", nb.DeviceID)
		assert.True(t, nb.UpdatedAt.After(nb.CreatedAt))

		_, err = bob.GetNotebook(ctx, "nb1")
		assert.ErrorIs(t, err, ErrNotFound)
		empty, err := bob.PullNotebooks(ctx)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("Notebook id is required", func(t *testing.T) {
		_, err := alice.PushNotebook(ctx, NotebookRequest{Title: "no id"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 400")
	})

	t.Run("Conversations insert once", func(t *testing.T) {
		require.NoError(t, alice.PushConversation(ctx, ConversationRequest{ID: "c1", NotebookID: "nb1", Question: "What is ATP?", Answer: "Energy."}))
		require.NoError(t, alice.PushConversation(ctx, ConversationRequest{ID: "c1", NotebookID: "nb1", Question: "changed", Answer: "changed"}))
		require.NoError(t, alice.PushConversation(ctx, ConversationRequest{ID: "c2", NotebookID: "nb2", Question: "Force?", Answer: "ma"}))

		convs, err := alice.PullConversations(ctx, "nb1")
		require.NoError(t, err)
		require.Len(t, convs, 1)
		assert.Equal(t, "What is ATP?", convs[0].Question)

		all, err := alice.PullConversations(ctx, "")
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "c2", all[0].ID)
	})

	t.Run("Status counts and last sync", func(t *testing.T) {
		st, err := alice.Status(ctx)
		require.NoError(t, err)
		assert.Equal(t, "connected", st.Status)
		assert.Equal(t, 2, st.NotebooksSynced)
		assert.Equal(t, 2, st.ConversationsSynced)
		require.NotNil(t, st.LastSync)

		st, err = bob.Status(ctx)
		require.NoError(t, err)
		assert.Nil(t, st.LastSync)
		assert.Zero(t, st.NotebooksSynced)
	})

	t.Run("Settings default and replace", func(t *testing.T) {
		s, err := alice.GetSettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, "{}", s)

		require.NoError(t, alice.PutSettings(ctx, `{"theme":"dark"}`))
		s, err = alice.GetSettings(ctx)
		require.NoError(t, err)
		assert.JSONEq(t, `{"theme":"dark"}`, s)

		assert.Error(t, alice.PutSettings(ctx, `{broken`))
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, alice.DeleteNotebook(ctx, "nb2"))
		assert.ErrorIs(t, alice.DeleteNotebook(ctx, "nb2"), ErrNotFound)
		assert.Len(t, store.nbs["auth0|alice"], 1)
	})

	t.Run("Bad body", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/sync/notebooks", strings.NewReader("{"))
		require.NoError(t, err)
		req.Header.Set(HeaderUserID, "auth0|alice")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestHeaderAuthenticator(t *testing.T) {
	ts, _ := newTestServer(t, "s3cret")
	ctx := context.Background()

	_, err := NewClient(ts.URL, "auth0|alice", "wrong").Status(ctx)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = NewClient(ts.URL, "auth0|alice", "").Status(ctx)
	assert.ErrorIs(t, err, ErrUnauthorized)

	st, err := NewClient(ts.URL, "auth0|alice", "s3cret").Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "auth0|alice", st.UserID)
}
