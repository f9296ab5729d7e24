// Package aggregate 网关聚合读（fan-out）
//
// 对一个主实体并发发起一组固定的后端调用，按 bulkhead 思路隔离故障域：
// 必需调用失败则整体失败；可选调用失败只降级对应分区，绝不拖垮整体。
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/containerd/errdefs"

	"podium-gateway/internal/gateway/proxy"
)

// Section 聚合结果的一个分区：data 与 error 恰有一个非空
type Section struct {
	Data  interface{} `json:"data"`
	Error *string     `json:"error"`
}

// Summary 聚合摘要，由各分区成败确定性推导
type Summary struct {
	ServicesHealthy int       `json:"services_healthy"`
	ServicesTotal   int       `json:"services_total"`
	HealthPercent   int       `json:"health_percent"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// SpeakerProfile 演讲人复合视图
type SpeakerProfile struct {
	SpeakerID   string      `json:"speaker_id"`
	Speaker     interface{} `json:"speaker"`
	Statistics  Section     `json:"statistics"`
	Drafts      Section     `json:"drafts"`
	Evaluations Section     `json:"evaluations"`
	Summary     Summary     `json:"summary"`
}

// Aggregator 聚合器
type Aggregator struct {
	client *proxy.Client
}

// NewAggregator 创建聚合器
func NewAggregator(client *proxy.Client) *Aggregator {
	return &Aggregator{client: client}
}

// optionalCall 一次可选调用的定义
type optionalCall struct {
	section *Section
	service string
	path    string
	query   map[string]interface{}
}

// SpeakerProfile 聚合演讲人的复合视图
//
// 固定调用集：
//   - 必需：speaker GET /api/v1/speakers/{id} —— 失败则整体失败（NotFound 类错误），
//     不返回部分结果
//   - 可选：演讲统计、讲稿列表、评估指标 —— 单项失败只记入该分区的 error
//
// 所有调用并发发起；聚合器等待全部完成（无论成败）后再组装结果，
// 除必需调用失败外没有短路路径。
func (a *Aggregator) SpeakerProfile(ctx context.Context, speakerID string, headers http.Header) (*SpeakerProfile, error) {
	profile := &SpeakerProfile{SpeakerID: speakerID}

	var (
		wg         sync.WaitGroup
		speakerErr error
	)

	// 必需调用：主实体
	wg.Add(1)
	go func() {
		defer wg.Done()
		data, err := a.client.Do(ctx, "speaker", http.MethodGet,
			"/api/v1/speakers/"+speakerID, nil, headers)
		if err != nil {
			speakerErr = err
			return
		}
		profile.Speaker = data
	}()

	// 可选调用：相关集合与指标
	calls := []optionalCall{
		{&profile.Statistics, "speaker", "/api/v1/speakers/" + speakerID + "/statistics", nil},
		{&profile.Drafts, "draft", "/api/v1/drafts", map[string]interface{}{"speaker_id": speakerID}},
		{&profile.Evaluations, "evaluation", "/api/v1/evaluations/metrics", map[string]interface{}{"speaker_id": speakerID}},
	}
	for i := range calls {
		call := calls[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := a.client.Do(ctx, call.service, http.MethodGet, call.path, call.query, headers)
			if err != nil {
				msg := err.Error()
				call.section.Error = &msg
				return
			}
			call.section.Data = data
		}()
	}

	wg.Wait()

	// 必需调用失败：整体失败，不返回部分结果
	if speakerErr != nil {
		var upstream *proxy.UpstreamError
		if errors.As(speakerErr, &upstream) && upstream.IsNotFound() {
			return nil, fmt.Errorf("%w: speaker %s not found", errdefs.ErrNotFound, speakerID)
		}
		if errdefs.IsNotFound(speakerErr) {
			return nil, speakerErr
		}
		return nil, fmt.Errorf("failed to fetch speaker %s: %w", speakerID, speakerErr)
	}

	profile.Summary = summarize(profile.Statistics, profile.Drafts, profile.Evaluations)
	return profile, nil
}

// summarize 从分区成败推导摘要
func summarize(sections ...Section) Summary {
	healthy := 0
	for _, s := range sections {
		if s.Error == nil {
			healthy++
		}
	}
	total := len(sections)
	return Summary{
		ServicesHealthy: healthy,
		ServicesTotal:   total,
		HealthPercent:   int(math.Round(float64(healthy) / float64(total) * 100)),
		GeneratedAt:     time.Now().UTC(),
	}
}
