package infra

import (
	"bytes"
	"encoding/json"
)

// generateEnvelope Cloud Code 生成接口的请求外层
type generateEnvelope struct {
	Project     string          `json:"project,omitempty"`
	Model       string          `json:"model"`
	Request     generateRequest `json:"request"`
	RequestType string          `json:"requestType"`
	UserAgent   string          `json:"userAgent"`
	RequestID   string          `json:"requestId"`
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
	Tools             []tool            `json:"tools,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text             string          `json:"text,omitempty"`
	Thought          bool            `json:"thought,omitempty"`
	ThoughtSignature json.RawMessage `json:"thoughtSignature,omitempty"`
}

// isReasoning 判断是否为内部推理片段
func (p *part) isReasoning() bool {
	if p.Thought {
		return true
	}
	sig := bytes.TrimSpace(p.ThoughtSignature)
	switch string(sig) {
	case "", "null", "false", `""`:
		return false
	}
	return true
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type tool struct {
	GoogleSearch *struct{} `json:"googleSearch,omitempty"`
}

// generateResponse 兼容 Cloud Code 的 response 包装和直接返回 candidates 两种形状
type generateResponse struct {
	Response   *candidatesBody `json:"response,omitempty"`
	Candidates []candidate     `json:"candidates,omitempty"`
}

type candidatesBody struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content           *content           `json:"content,omitempty"`
	GroundingMetadata *groundingMetadata `json:"groundingMetadata,omitempty"`
	FinishReason      string             `json:"finishReason,omitempty"`
}

type groundingMetadata struct {
	GroundingChunks  []groundingChunk `json:"groundingChunks,omitempty"`
	WebSearchQueries []string         `json:"webSearchQueries,omitempty"`
}

type groundingChunk struct {
	Web *struct {
		URI   string `json:"uri"`
		Title string `json:"title"`
	} `json:"web,omitempty"`
}

func (r *generateResponse) firstCandidate() *candidate {
	candidates := r.Candidates
	if r.Response != nil && len(r.Response.Candidates) > 0 {
		candidates = r.Response.Candidates
	}
	if len(candidates) == 0 {
		return nil
	}
	return &candidates[0]
}
