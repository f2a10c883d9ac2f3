package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"pixelnerd/internal/types"
)

func openTestStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func snapshot(w, h int, transparent bool) types.SpecsSnapshot {
	return types.SpecsSnapshot{
		Width:           w,
		Height:          h,
		HasTransparency: transparent,
		Format:          "png",
		DominantColors: []types.DominantColor{
			{R: 0x33, G: 0x66, B: 0xff, Hex: "#3366ff", Percentage: 70},
		},
	}
}

func execution(tool string, success bool, confidence float64, specs types.SpecsSnapshot) types.ToolExecution {
	return types.ToolExecution{
		ToolName:   tool,
		Parameters: map[string]interface{}{"tolerance": 30.0},
		Success:    success,
		Confidence: confidence,
		Metrics:    types.ResultMetrics{PixelsChanged: 1000, PercentageChanged: 12.5},
		ImageSpecs: specs,
		Timestamp:  time.Now().UTC(),
	}
}

func analysisFor(s types.SpecsSnapshot) types.ImageAnalysis {
	return types.ImageAnalysis{
		Width:           s.Width,
		Height:          s.Height,
		HasTransparency: s.HasTransparency,
		Format:          s.Format,
		DominantColors:  s.DominantColors,
		Confidence:      100,
	}
}

func TestStoreExecutionGate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	specs := snapshot(800, 600, false)

	tests := []struct {
		name       string
		success    bool
		confidence float64
		wantStored bool
	}{
		{"high confidence success", true, 85, true},
		{"exactly at threshold", true, 70, true},
		{"below threshold", true, 69, false},
		{"failed execution", false, 95, false},
		{"failed and low", false, 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stored, err := s.StoreExecution(ctx, "conv-1", execution("remove_color", tt.success, tt.confidence, specs))
			if err != nil {
				t.Fatalf("StoreExecution: %v", err)
			}
			if stored != tt.wantStored {
				t.Errorf("stored = %v, want %v", stored, tt.wantStored)
			}
		})
	}

	// Only the two admitted executions may ever surface.
	found, err := s.FindSimilar(ctx, "remove_color", analysisFor(specs), 10)
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("found %d executions, want 2 (the gate must hold)", len(found))
	}
	for _, e := range found {
		if !e.Success || e.Confidence < 70 {
			t.Errorf("retrieved a gated-out execution: success=%v confidence=%v", e.Success, e.Confidence)
		}
	}
}

func TestFindSimilarFiltersByTool(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	specs := snapshot(800, 600, false)

	if _, err := s.StoreExecution(ctx, "c1", execution("remove_color", true, 90, specs)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.StoreExecution(ctx, "c1", execution("upscale_image", true, 90, specs)); err != nil {
		t.Fatal(err)
	}

	found, err := s.FindSimilar(ctx, "remove_color", analysisFor(specs), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].ToolName != "remove_color" {
		t.Errorf("found %+v, want exactly the remove_color execution", found)
	}
}

func TestFindSimilarRanksIdenticalSpecsFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	same := snapshot(800, 600, true)
	different := snapshot(64, 64, false)

	execSame := execution("remove_color", true, 90, same)
	execSame.Parameters["tolerance"] = 11.0
	execDiff := execution("remove_color", true, 90, different)
	execDiff.Parameters["tolerance"] = 99.0

	if _, err := s.StoreExecution(ctx, "c1", execDiff); err != nil {
		t.Fatal(err)
	}
	if _, err := s.StoreExecution(ctx, "c1", execSame); err != nil {
		t.Fatal(err)
	}

	found, err := s.FindSimilar(ctx, "remove_color", analysisFor(same), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 2 {
		t.Fatalf("found %d executions, want 2", len(found))
	}
	if found[0].Parameters["tolerance"] != 11.0 {
		t.Errorf("identical specs must rank first, got tolerance %v on top", found[0].Parameters["tolerance"])
	}
}

func TestDegradedModeFindsNothing(t *testing.T) {
	s, err := NewLocalStore(filepath.Join(t.TempDir(), "degraded.db"), NoopBackend{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()
	specs := snapshot(800, 600, false)

	stored, err := s.StoreExecution(ctx, "c1", execution("remove_color", true, 90, specs))
	if err != nil {
		t.Fatalf("degraded writes must not error: %v", err)
	}
	if !stored {
		t.Error("the gate admits the execution even in degraded mode")
	}

	found, err := s.FindSimilar(ctx, "remove_color", analysisFor(specs), 10)
	if err != nil {
		t.Fatalf("degraded search must not error: %v", err)
	}
	if len(found) != 0 {
		t.Errorf("degraded search found %d, want 0", len(found))
	}
}

func TestSaveTurnAndGetContext(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	img := analysisFor(snapshot(800, 600, true))
	img.AnalyzedAt = time.Now().UTC()
	msgs := []types.ChatMessage{
		{Role: "user", Content: "remove the blue background"},
		{Role: "assistant", Content: "done, 1 of 1 requested edits applied"},
	}
	if err := s.SaveTurn(ctx, "conv-42", msgs, &img); err != nil {
		t.Fatalf("SaveTurn: %v", err)
	}

	cc, err := s.GetContext(ctx, "conv-42")
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if cc == nil {
		t.Fatal("conversation not found after SaveTurn")
	}
	if len(cc.Messages) != 2 {
		t.Errorf("got %d messages, want 2", len(cc.Messages))
	}
	if cc.Messages[0].Role != "user" {
		t.Errorf("first message role = %q, want user", cc.Messages[0].Role)
	}
	if cc.LastAnalysis == nil || cc.LastAnalysis.Width != 800 {
		t.Errorf("LastAnalysis = %+v, want the saved analysis", cc.LastAnalysis)
	}

	missing, err := s.GetContext(ctx, "no-such-conversation")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Error("unknown conversation should return nil")
	}
}

func TestSaveTurnSkipsFallbackAnalysis(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	fallback := types.ImageAnalysis{AspectRatio: "0:0", Confidence: 0, AnalyzedAt: time.Now()}
	if err := s.SaveTurn(ctx, "c1", []types.ChatMessage{{Role: "user", Content: "hi"}}, &fallback); err != nil {
		t.Fatal(err)
	}

	cc, err := s.GetContext(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if cc.LastAnalysis != nil {
		t.Error("zero-confidence analysis must not be persisted as ground truth")
	}
}

func TestPrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e := execution("remove_color", true, 90, snapshot(800, 600, false))
		e.Timestamp = time.Now().UTC().Add(time.Duration(i) * time.Second)
		if _, err := s.StoreExecution(ctx, "c1", e); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := s.Prune(ctx, 2)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed.Executions != 3 {
		t.Errorf("removed executions = %d, want 3", removed.Executions)
	}

	st, err := s.GetStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Executions != 2 {
		t.Errorf("executions after prune = %d, want 2", st.Executions)
	}
}

func TestPruneRetiresOldestConversations(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	img := analysisFor(snapshot(800, 600, false))
	for _, id := range []string{"c-old", "c-mid", "c-new"} {
		msgs := []types.ChatMessage{
			{Role: "user", Content: "edit " + id},
			{Role: "assistant", Content: "done"},
		}
		if err := s.SaveTurn(ctx, id, msgs, &img); err != nil {
			t.Fatal(err)
		}
		// Distinct updated_at values so the oldest-first order is unambiguous.
		time.Sleep(5 * time.Millisecond)
	}

	removed, err := s.Prune(ctx, 1)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed.Conversations != 2 {
		t.Errorf("removed conversations = %d, want 2", removed.Conversations)
	}

	st, err := s.GetStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Conversations != 1 {
		t.Errorf("conversations after prune = %d, want 1", st.Conversations)
	}
	if st.Messages != 2 {
		t.Errorf("messages after prune = %d, want 2 (cascade missed)", st.Messages)
	}

	// The most recently updated conversation survives; the older ones are gone.
	cc, err := s.GetContext(ctx, "c-new")
	if err != nil {
		t.Fatal(err)
	}
	if cc == nil {
		t.Fatal("newest conversation was pruned")
	}
	if cc.LastAnalysis == nil {
		t.Error("surviving conversation lost its analysis")
	}
	for _, id := range []string{"c-old", "c-mid"} {
		cc, err := s.GetContext(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if cc != nil {
			t.Errorf("conversation %s should have been pruned", id)
		}
	}
}

func TestFeatureVectorProperties(t *testing.T) {
	a := FeatureVector(snapshot(800, 600, true))
	b := FeatureVector(snapshot(800, 600, true))
	c := FeatureVector(snapshot(64, 64, false))

	if len(a) != featureDims {
		t.Fatalf("vector length = %d, want %d", len(a), featureDims)
	}
	if sim := cosineSimilarity(a, b); math.Abs(sim-1) > 1e-9 {
		t.Errorf("identical snapshots: similarity = %v, want 1", sim)
	}
	if same, diff := cosineSimilarity(a, b), cosineSimilarity(a, c); diff > same {
		t.Errorf("differing snapshot ranked closer (%v) than identical (%v)", diff, same)
	}

	round := decodeVector(encodeVector(a))
	for i := range a {
		if a[i] != round[i] {
			t.Fatalf("vector round-trip mismatch at %d: %v != %v", i, a[i], round[i])
		}
	}
}
