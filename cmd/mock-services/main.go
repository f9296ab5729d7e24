// Package main Mock Services - 单进程模拟四个后端服务
//
// 本地开发与 E2E 测试用：在 8081-8084 端口分别模拟
// speaker / draft / rag / evaluation 服务的最小接口面。
// 数据保存在进程内存中，重启即清空。
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// store 进程内数据，预置一个演讲人方便手工调试
type store struct {
	mu     sync.Mutex
	notes  map[string][]map[string]interface{} // speakerID -> notes
	drafts map[string]map[string]interface{}   // draftID -> draft
	seq    int
}

func newStore() *store {
	return &store{
		notes: map[string][]map[string]interface{}{
			"spk-001": {
				{"note_id": "note-1", "title": "就职演说素材", "ingested_at": time.Now().UTC()},
			},
		},
		drafts: map[string]map[string]interface{}{},
	}
}

func (s *store) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%03d", prefix, s.seq)
}

func speakerMux(s *store) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/speakers/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if strings.HasPrefix(id, "missing") {
			writeError(w, http.StatusNotFound, "speaker not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"speaker_id": id, "name": "林语", "style": "庄重",
		})
	})
	mux.HandleFunc("GET /api/v1/speakers/{id}/statistics", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		n := len(s.notes[r.PathValue("id")])
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"note_count": n, "draft_count": 2, "evaluation_count": 1,
		})
	})
	mux.HandleFunc("GET /api/v1/speakers/{id}/notes", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		notes := s.notes[r.PathValue("id")]
		s.mu.Unlock()
		if notes == nil {
			notes = []map[string]interface{}{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"notes": notes, "total": len(notes)})
	})
	return mux
}

func draftMux(s *store) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/drafts", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		items := make([]map[string]interface{}, 0, len(s.drafts))
		for _, d := range s.drafts {
			items = append(items, d)
		}
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]interface{}{"drafts": items, "total": len(items)})
	})
	mux.HandleFunc("GET /api/v1/drafts/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		d := s.drafts[r.PathValue("id")]
		s.mu.Unlock()
		if d == nil {
			writeError(w, http.StatusNotFound, "draft not found")
			return
		}
		writeJSON(w, http.StatusOK, d)
	})
	return mux
}

func ragMux(s *store) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/rag/generate", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		json.NewDecoder(r.Body).Decode(&req)

		s.mu.Lock()
		draftID := s.nextID("draft")
		s.drafts[draftID] = map[string]interface{}{
			"draft_id":   draftID,
			"speaker_id": req["speaker_id"],
			"content":    "各位来宾，大家好……（模拟生成内容）",
			"created_at": time.Now().UTC(),
		}
		s.mu.Unlock()

		writeJSON(w, http.StatusOK, map[string]interface{}{"draft_id": draftID, "status": "generated"})
	})
	mux.HandleFunc("POST /api/v1/rag/vectorize", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"vector_count": 12, "status": "indexed"})
	})
	return mux
}

func evaluationMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/evaluations/metrics", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"metrics": map[string]interface{}{"avg_score": 4.2, "count": 3},
		})
	})
	return mux
}

func main() {
	s := newStore()

	services := map[string]http.Handler{
		":8081": speakerMux(s),
		":8082": draftMux(s),
		":8083": ragMux(s),
		":8084": evaluationMux(),
	}

	for addr, handler := range services {
		srv := &http.Server{Addr: addr, Handler: logMiddleware(handler)}
		go func(addr string) {
			log.Printf("Mock service listening on %s", addr)
			if err := srv.ListenAndServe(); err != http.ErrServerClosed {
				log.Fatalf("Mock service %s error: %v", addr, err)
			}
		}(addr)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	fmt.Println("Mock services stopped")
}

// logMiddleware 打印每个请求，方便调试网关行为
func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
