// Package workflow 编排器测试
package workflow

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podium-gateway/internal/gateway/proxy"
	"podium-gateway/internal/shared/eventbus"
	"podium-gateway/internal/shared/registry"
)

// mockBackends 四个后端服务的可编程替身
type mockBackends struct {
	speakerExists bool
	noteCount     int
	notesFail     bool
	ragFail       bool
	draftFail     bool
}

func (m *mockBackends) start(t *testing.T) map[string]string {
	t.Helper()

	speakerSvc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/speakers/spk-001":
			if !m.speakerExists {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"error": "speaker not found"}`))
				return
			}
			w.Write([]byte(`{"speaker_id": "spk-001", "name": "林语"}`))
		case "/api/v1/speakers/spk-001/notes":
			if m.notesFail {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"error": "notes backend down"}`))
				return
			}
			switch m.noteCount {
			case 0:
				w.Write([]byte(`{"notes": [], "total": 0}`))
			default:
				w.Write([]byte(`{"notes": [{"note_id": "note-1"}], "total": 1}`))
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(speakerSvc.Close)

	ragSvc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if m.ragFail {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`{"error": "model backend unavailable"}`))
			return
		}
		w.Write([]byte(`{"draft_id": "draft-new", "status": "generated"}`))
	}))
	t.Cleanup(ragSvc.Close)

	draftSvc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if m.draftFail {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error": "draft store down"}`))
			return
		}
		w.Write([]byte(`{"draft_id": "draft-new", "content": "各位来宾……"}`))
	}))
	t.Cleanup(draftSvc.Close)

	return map[string]string{
		"speaker":    speakerSvc.URL,
		"draft":      draftSvc.URL,
		"rag":        ragSvc.URL,
		"evaluation": ragSvc.URL,
	}
}

func newTestOrchestrator(t *testing.T, m *mockBackends, pub eventbus.Publisher) *Orchestrator {
	t.Helper()
	reg, err := registry.New(m.start(t))
	require.NoError(t, err)
	return NewOrchestrator(proxy.NewClient(reg, 2*time.Second), pub)
}

func stepNames(record *ExecutionRecord) []string {
	names := make([]string, len(record.Steps))
	for i, s := range record.Steps {
		names[i] = s.Name
	}
	return names
}

// TestGenerateFinalDraft_Completed 全部步骤成功
func TestGenerateFinalDraft_Completed(t *testing.T) {
	pub := eventbus.NewMemoryPublisher()
	o := newTestOrchestrator(t, &mockBackends{speakerExists: true, noteCount: 1}, pub)

	record := o.GenerateFinalDraft(context.Background(), "spk-001", GenerateRequest{Prompt: "开场白"})

	assert.Equal(t, StatusCompleted, record.Status)
	assert.Equal(t, []string{"validate_speaker", "check_notes", "generate_draft", "fetch_draft_detail"},
		stepNames(record))
	for _, step := range record.Steps {
		assert.Equal(t, StepCompleted, step.Status)
	}
	require.NotNil(t, record.CompletedAt)
	assert.Nil(t, record.FailedAt)
	assert.Empty(t, record.Error)

	// 完成后广播 DraftGenerated
	messages := pub.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, eventbus.EventDraftGenerated, messages[0].Envelope.EventType)
	assert.Equal(t, "spk-001", messages[0].Envelope.AggregateID)
	assert.Equal(t, "draft-new", messages[0].Envelope.Payload["draft_id"])
	assert.Equal(t, record.WorkflowID, messages[0].Envelope.CorrelationID)
}

// TestGenerateFinalDraft_SpeakerNotFound 主实体不存在：步骤 1 终止
func TestGenerateFinalDraft_SpeakerNotFound(t *testing.T) {
	o := newTestOrchestrator(t, &mockBackends{speakerExists: false}, nil)

	record := o.GenerateFinalDraft(context.Background(), "spk-001", GenerateRequest{})

	assert.Equal(t, StatusFailed, record.Status)
	assert.Equal(t, ErrCodeSpeakerNotFound, record.ErrorCode)
	assert.Equal(t, []string{"validate_speaker"}, stepNames(record))
	assert.Equal(t, StepFailed, record.Steps[0].Status)
	require.NotNil(t, record.FailedAt)
	assert.Nil(t, record.CompletedAt)
}

// TestGenerateFinalDraft_MissingNotes 前置条件不满足：无素材即业务失败
func TestGenerateFinalDraft_MissingNotes(t *testing.T) {
	o := newTestOrchestrator(t, &mockBackends{speakerExists: true, noteCount: 0}, nil)

	record := o.GenerateFinalDraft(context.Background(), "spk-001", GenerateRequest{})

	assert.Equal(t, StatusFailed, record.Status)
	assert.Equal(t, ErrCodeMissingNotes, record.ErrorCode)
	assert.Contains(t, record.Error, "no ingested notes")
	// 不出现 generate / fetch 步骤
	assert.Equal(t, []string{"validate_speaker", "check_notes"}, stepNames(record))
}

// TestGenerateFinalDraft_GenerationFails 生成后端故障：步骤 3 终止
func TestGenerateFinalDraft_GenerationFails(t *testing.T) {
	pub := eventbus.NewMemoryPublisher()
	o := newTestOrchestrator(t, &mockBackends{speakerExists: true, noteCount: 1, ragFail: true}, pub)

	record := o.GenerateFinalDraft(context.Background(), "spk-001", GenerateRequest{})

	assert.Equal(t, StatusFailed, record.Status)
	assert.Equal(t, ErrCodeGenerationFailed, record.ErrorCode)
	assert.Equal(t, []string{"validate_speaker", "check_notes", "generate_draft"}, stepNames(record))
	assert.Equal(t, StepFailed, record.Steps[2].Status)
	// 失败不广播事件
	assert.Empty(t, pub.Messages())
}

// TestGenerateFinalDraft_PartialDetail 回查失败：步骤 4 记 partial，整体仍完成
func TestGenerateFinalDraft_PartialDetail(t *testing.T) {
	o := newTestOrchestrator(t, &mockBackends{speakerExists: true, noteCount: 1, draftFail: true}, nil)

	record := o.GenerateFinalDraft(context.Background(), "spk-001", GenerateRequest{})

	assert.Equal(t, StatusCompleted, record.Status)
	require.Len(t, record.Steps, 4)
	assert.Equal(t, "fetch_draft_detail", record.Steps[3].Name)
	assert.Equal(t, StepPartial, record.Steps[3].Status)
	assert.Nil(t, record.Steps[3].Data)
	require.NotNil(t, record.CompletedAt)
}

// TestGenerateFinalDraft_PublishFailureIgnored 事件发布失败不影响执行结果
func TestGenerateFinalDraft_PublishFailureIgnored(t *testing.T) {
	pub := eventbus.NewMemoryPublisher()
	pub.FailNext = true
	o := newTestOrchestrator(t, &mockBackends{speakerExists: true, noteCount: 1}, pub)

	record := o.GenerateFinalDraft(context.Background(), "spk-001", GenerateRequest{})
	assert.Equal(t, StatusCompleted, record.Status)
}

// TestGenerateFinalDraft_StepIndexesOrdered 步骤序号从 1 起严格递增
func TestGenerateFinalDraft_StepIndexesOrdered(t *testing.T) {
	o := newTestOrchestrator(t, &mockBackends{speakerExists: true, noteCount: 1}, nil)

	record := o.GenerateFinalDraft(context.Background(), "spk-001", GenerateRequest{})
	for i, step := range record.Steps {
		assert.Equal(t, i+1, step.Index)
	}
}
