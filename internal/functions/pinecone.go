package functions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

var pineconeDefinition = Definition{
	Name:        SearchPinecone,
	Description: "Search the assistant's knowledge base for passages relevant to a question.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"namespace": map[string]any{
				"type":        "string",
				"description": "Knowledge base namespace.",
			},
			"query": map[string]any{
				"type":        "string",
				"description": "Natural language search query.",
			},
			"top_k": map[string]any{
				"type":        "integer",
				"description": "Number of passages to return.",
			},
		},
		"required": []string{"namespace", "query"},
	},
}

type pineconeSearcher struct {
	client *http.Client
	apiKey string
	host   string
}

type pineconeHit struct {
	ID     string         `json:"_id"`
	Score  float64        `json:"_score"`
	Fields map[string]any `json:"fields"`
}

type pineconeResponse struct {
	Result struct {
		Hits []pineconeHit `json:"hits"`
	} `json:"result"`
}

func (p *pineconeSearcher) search(ctx context.Context, args map[string]any, _ CallContext) map[string]any {
	if p.apiKey == "" || p.host == "" {
		return ErrorResult("knowledge base search is not configured")
	}
	namespace := strings.TrimSpace(stringArg(args, "namespace"))
	query := strings.TrimSpace(stringArg(args, "query"))
	if namespace == "" || query == "" {
		return ErrorResult("namespace and query are required")
	}
	topK := intArg(args, "top_k", 3)
	if topK <= 0 || topK > 20 {
		topK = 3
	}

	endpoint := p.host + "/records/namespaces/" + url.PathEscape(namespace) + "/search"
	body := map[string]any{
		"query": map[string]any{
			"inputs": map[string]any{"text": query},
			"top_k":  topK,
		},
	}
	headers := map[string]string{
		"Api-Key":                p.apiKey,
		"X-Pinecone-API-Version": "2025-01",
	}
	reply, err := postJSON(ctx, p.client, endpoint, headers, body, 1<<20)
	if err != nil {
		return ErrorResult(err.Error())
	}
	if reply.Status < 200 || reply.Status >= 300 {
		return map[string]any{
			"status": reply.Status,
			"error":  fmt.Sprintf("knowledge base returned status %d", reply.Status),
		}
	}

	var parsed pineconeResponse
	if err := json.Unmarshal(reply.Body, &parsed); err != nil {
		return ErrorResult("decode knowledge base response: " + err.Error())
	}
	matches := make([]map[string]any, 0, len(parsed.Result.Hits))
	for _, h := range parsed.Result.Hits {
		matches = append(matches, map[string]any{
			"id":    h.ID,
			"score": h.Score,
			"text":  hitText(h.Fields),
		})
	}
	return map[string]any{"status": reply.Status, "matches": matches}
}

func hitText(fields map[string]any) string {
	for _, k := range []string{"text", "chunk_text", "content"} {
		if s, ok := fields[k].(string); ok {
			return s
		}
	}
	return ""
}
