// Package registry 服务注册表测试
package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRegistry_Resolve 已注册服务解析到规范化的基地址
func TestRegistry_Resolve(t *testing.T) {
	r, err := New(map[string]string{
		"speaker":    "http://speaker-svc:8081/",
		"draft":      "http://draft-svc:8082",
		"rag":        "http://rag-svc:8083",
		"evaluation": "http://evaluation-svc:8084",
	})
	require.NoError(t, err)

	baseURL, err := r.Resolve("speaker")
	require.NoError(t, err)
	assert.Equal(t, "http://speaker-svc:8081", baseURL, "trailing slash is trimmed")

	baseURL, err = r.Resolve("draft")
	require.NoError(t, err)
	assert.Equal(t, "http://draft-svc:8082", baseURL)
}

// TestRegistry_UnknownService 未知服务名报错
func TestRegistry_UnknownService(t *testing.T) {
	r, err := New(map[string]string{"speaker": "http://speaker-svc:8081"})
	require.NoError(t, err)

	_, err = r.Resolve("billing")
	assert.Error(t, err)
	assert.False(t, r.Has("billing"))
	assert.True(t, r.Has("speaker"))
}

// TestRegistry_EmptyOrInvalid 空映射或非法条目拒绝构造
func TestRegistry_EmptyOrInvalid(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(map[string]string{"speaker": ""})
	assert.Error(t, err)
}

// TestRegistry_Services 服务名列表排序稳定
func TestRegistry_Services(t *testing.T) {
	r, err := New(map[string]string{
		"rag":     "http://rag:1",
		"speaker": "http://speaker:1",
		"draft":   "http://draft:1",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"draft", "rag", "speaker"}, r.Services())
}
