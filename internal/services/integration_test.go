package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"cybersync/internal/config"
	"cybersync/internal/database"
	"cybersync/internal/extract"
	"cybersync/internal/llm"
	"cybersync/internal/models"
	"cybersync/internal/store"
)

// integrationEnv wires real stores against a MongoDB instance plus stubbed
// encoder and model upstreams.
// Requires MONGODB_TEST_URI environment variable to be set.
type integrationEnv struct {
	db            *database.MongoDB
	memories      *store.MemoryStore
	messages      *store.MessageStore
	conversations *store.ConversationStore
	blobs         *store.BlobStore
	memorySvc     *MemoryService
	chatSvc       *ChatService

	ownerID   primitive.ObjectID
	tag       string
	modelDown atomic.Bool
}

// testEmbedding derives a deterministic vector from the input text, so tests
// can tell whether an embedding was recomputed.
func testEmbedding(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, 4)
	for i := range vec {
		vec[i] = float32(sum[i])
	}
	return vec
}

func setupIntegration(t *testing.T) *integrationEnv {
	mongoURI := os.Getenv("MONGODB_TEST_URI")
	if mongoURI == "" {
		t.Skip("MONGODB_TEST_URI not set - skipping integration test")
		return nil
	}

	ctx := context.Background()
	env := &integrationEnv{
		ownerID: primitive.NewObjectID(),
		tag:     "itest-" + uuid.NewString(),
	}

	encoder := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Data []string `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		embeddings := make([][]float32, len(req.Data))
		for i, text := range req.Data {
			embeddings[i] = testEmbedding(text)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"embeddings": embeddings})
	}))

	model := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if env.modelDown.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"reply": "Grounded answer."})
	}))

	db, err := database.NewMongoDB(mongoURI)
	if err != nil {
		t.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	if err := db.Initialize(ctx); err != nil {
		t.Fatalf("Failed to initialize MongoDB: %v", err)
	}
	bucket, err := db.Bucket()
	if err != nil {
		t.Fatalf("Failed to open blob bucket: %v", err)
	}

	cfg := &config.Config{
		EncoderURL:           encoder.URL,
		ModelURL:             model.URL,
		ChunkSizeBytes:       24,
		MaxContextSize:       5,
		ScoreThreshold:       0.65,
		HistoryWindow:        5,
		NumCandidates:        10,
		EmbedTimeout:         5 * time.Second,
		GenerateTimeout:      5 * time.Second,
		RetrievalTaskTimeout: 5 * time.Second,
		MaxRetries:           0,
		BackoffBase:          10 * time.Millisecond,
		EmbedRatePerSec:      100,
	}

	overrides, err := config.LoadOverrides("")
	if err != nil {
		t.Fatalf("Failed to load overrides: %v", err)
	}

	client := llm.NewClient(cfg)
	env.db = db
	env.memories = store.NewMemoryStore(db)
	env.messages = store.NewMessageStore(db)
	env.conversations = store.NewConversationStore(db)
	env.blobs = store.NewBlobStore(bucket)
	audits := store.NewAuditStore(db)
	env.memorySvc = NewMemoryService(db, env.memories, audits, env.blobs, client, cfg.ChunkSizeBytes)
	retrieval := NewRetrievalService(cfg, env.memories, env.messages, client, nil)
	env.chatSvc = NewChatService(db, env.conversations, env.messages, audits, retrieval, client, overrides)

	t.Cleanup(func() {
		d := db.Database()
		d.Collection(database.CollectionMemory).DeleteMany(ctx, bson.M{"tags": env.tag})
		convs, _ := env.conversations.ListByOwner(ctx, env.ownerID)
		for _, conv := range convs {
			d.Collection(database.CollectionMessage).DeleteMany(ctx, bson.M{"conversation": conv.ID})
			d.Collection(database.CollectionAudit).DeleteMany(ctx, bson.M{"toData.conversation": conv.ID.Hex()})
		}
		d.Collection(database.CollectionConversation).DeleteMany(ctx, bson.M{"owner": env.ownerID})
		d.Collection(database.CollectionAudit).DeleteMany(ctx, bson.M{"actor": env.ownerID})
		db.Close(ctx)
		encoder.Close()
		model.Close()
	})
	return env
}

func (env *integrationEnv) uploadFile(t *testing.T, filename, content string) *models.MemoryItem {
	t.Helper()
	info := extract.FileInfo{Filename: filename, ContentType: "text/plain", Size: int64(len(content))}
	item, err := env.memorySvc.CreateFile(context.Background(), env.ownerID, info, bytes.NewReader([]byte(content)), "", []string{env.tag})
	if err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	return item
}

func TestSoftDeleteFansOutAndDropsBlob(t *testing.T) {
	env := setupIntegration(t)
	ctx := context.Background()

	content := strings.Repeat("incident response playbook for phishing drills. ", 4)
	filename := "playbook-" + env.tag + ".txt"
	item := env.uploadFile(t, filename, content)
	if item.Chunks < 2 {
		t.Fatalf("upload should split into multiple chunks, got %d", item.Chunks)
	}

	files := env.db.Database().Collection("fs.files")
	n, err := files.CountDocuments(ctx, bson.M{"filename": filename})
	if err != nil {
		t.Fatalf("blob count failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly 1 stored blob before delete, got %d", n)
	}

	if err := env.memorySvc.Delete(ctx, env.ownerID, item.ID, false); err != nil {
		t.Fatalf("soft delete failed: %v", err)
	}

	chunks, err := env.memories.GroupChunks(ctx, item.ID, true)
	if err != nil {
		t.Fatalf("GroupChunks failed: %v", err)
	}
	if len(chunks) != item.Chunks {
		t.Fatalf("expected %d chunks after soft delete, got %d", item.Chunks, len(chunks))
	}
	for i, c := range chunks {
		if c.DeletedAt == nil {
			t.Errorf("chunk %d not marked deleted", i)
		}
	}

	active, err := env.memories.GroupChunks(ctx, item.ID, false)
	if err != nil {
		t.Fatalf("GroupChunks failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("expected no active chunks after soft delete, got %d", len(active))
	}

	n, err = files.CountDocuments(ctx, bson.M{"filename": filename})
	if err != nil {
		t.Fatalf("blob count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected the blob to be removed on soft delete, %d remain", n)
	}

	blobID, err := primitive.ObjectIDFromHex(item.ID)
	if err != nil {
		t.Fatalf("group key is not a blob id: %v", err)
	}
	if _, err := env.blobs.Open(blobID); !errors.Is(err, store.ErrInvalidReference) {
		t.Errorf("opening the dropped blob should report an invalid reference, got %v", err)
	}
}

func TestRestoreClearsDeleteMarkerOnEveryChunk(t *testing.T) {
	env := setupIntegration(t)
	ctx := context.Background()

	content := strings.Repeat("weekly threat briefing notes for the blue team. ", 3)
	item := env.uploadFile(t, "briefing-"+env.tag+".txt", content)

	if err := env.memorySvc.Delete(ctx, env.ownerID, item.ID, false); err != nil {
		t.Fatalf("soft delete failed: %v", err)
	}
	restored, err := env.memorySvc.Restore(ctx, env.ownerID, item.ID)
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if restored.DeletedAt != nil {
		t.Error("restored item still carries a delete marker")
	}

	chunks, err := env.memories.GroupChunks(ctx, item.ID, true)
	if err != nil {
		t.Fatalf("GroupChunks failed: %v", err)
	}
	if len(chunks) != item.Chunks {
		t.Fatalf("expected %d chunks after restore, got %d", item.Chunks, len(chunks))
	}
	for i, c := range chunks {
		if c.DeletedAt != nil {
			t.Errorf("chunk %d still marked deleted after restore", i)
		}
	}
}

func TestTitleUpdateReembedsTextMemory(t *testing.T) {
	env := setupIntegration(t)
	ctx := context.Background()

	item, err := env.memorySvc.CreateText(ctx, env.ownerID, "Old title", "shared body", []string{env.tag})
	if err != nil {
		t.Fatalf("CreateText failed: %v", err)
	}

	newTitle := "Renamed incident note"
	updated, err := env.memorySvc.Update(ctx, env.ownerID, item.ID, UpdateInput{Title: &newTitle})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Title != newTitle {
		t.Fatalf("expected title %q, got %q", newTitle, updated.Title)
	}

	chunks, err := env.memories.GroupChunks(ctx, item.ID, false)
	if err != nil {
		t.Fatalf("GroupChunks failed: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	want := testEmbedding(newTitle + "\nshared body")
	if !floatsEqual(chunks[0].Embeddings, want) {
		t.Errorf("embedding was not recomputed from the new title: got %v, want %v", chunks[0].Embeddings, want)
	}
}

func TestChatTurnPersistsConversationMessagesAndAudits(t *testing.T) {
	env := setupIntegration(t)
	ctx := context.Background()

	prompt := "Explain ransomware containment steps"
	resp, err := env.chatSvc.Chat(ctx, env.ownerID, models.ChatRequest{
		Prompt: models.Prompt{Role: models.RoleUser, Content: prompt},
	})
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if resp.Reply != "Grounded answer." {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
	if resp.Conversation == "" {
		t.Fatal("expected a conversation id in the response")
	}

	conv, err := env.conversations.GetByID(ctx, resp.Conversation)
	if err != nil {
		t.Fatalf("conversation lookup failed: %v", err)
	}
	if conv.Title != TitleFromPrompt(prompt) {
		t.Errorf("expected title %q, got %q", TitleFromPrompt(prompt), conv.Title)
	}

	msgs, err := env.messages.ListByConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("message listing failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(msgs))
	}
	if msgs[0].SenderID == nil || *msgs[0].SenderID != env.ownerID {
		t.Error("first message should carry the prompting user as sender")
	}
	if msgs[1].SenderID != nil {
		t.Error("second message should be the assistant turn")
	}
	if msgs[1].Text != resp.Reply {
		t.Errorf("stored reply %q does not match response %q", msgs[1].Text, resp.Reply)
	}

	auditColl := env.db.Database().Collection(database.CollectionAudit)
	subjects := []string{conv.ID.Hex(), msgs[0].ID.Hex(), msgs[1].ID.Hex()}
	for _, subject := range subjects {
		n, err := auditColl.CountDocuments(ctx, bson.M{"subjectId": subject})
		if err != nil {
			t.Fatalf("audit count failed: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 audit entry for %s, got %d", subject, n)
		}
	}
}

func TestChatOutageLeavesNothingPersisted(t *testing.T) {
	env := setupIntegration(t)
	ctx := context.Background()
	env.modelDown.Store(true)

	resp, err := env.chatSvc.Chat(ctx, env.ownerID, models.ChatRequest{
		Prompt: models.Prompt{Role: models.RoleUser, Content: "Is this phishing?"},
	})
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if resp.Reply == "Grounded answer." {
		t.Fatal("expected a degraded reply while the model is down")
	}
	if resp.Conversation != "" {
		t.Errorf("a degraded turn must not create a conversation, got %q", resp.Conversation)
	}

	convs, err := env.conversations.ListByOwner(ctx, env.ownerID)
	if err != nil {
		t.Fatalf("conversation listing failed: %v", err)
	}
	if len(convs) != 0 {
		t.Errorf("expected no persisted conversations, got %d", len(convs))
	}

	n, err := env.db.Database().Collection(database.CollectionAudit).CountDocuments(ctx, bson.M{"actor": env.ownerID})
	if err != nil {
		t.Fatalf("audit count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected no audit entries, got %d", n)
	}
}

func floatsEqual(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
