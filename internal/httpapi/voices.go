package httpapi

import (
	"net/http"
	"strings"

	"github.com/antoniostano/voicebridge/internal/assistant"
)

type voiceSummary struct {
	VoiceID string `json:"voice_id"`
	Name    string `json:"name"`
}

type listVoicesResponse struct {
	DefaultVoiceID string         `json:"default_voice_id"`
	Voices         []voiceSummary `json:"voices"`
}

func (s *Server) handleListVoices(w http.ResponseWriter, _ *http.Request) {
	voices := make([]voiceSummary, 0, len(assistant.Voices))
	for _, id := range assistant.Voices {
		voices = append(voices, voiceSummary{VoiceID: id, Name: displayName(id)})
	}
	respondJSON(w, http.StatusOK, listVoicesResponse{
		DefaultVoiceID: assistant.DefaultVoice,
		Voices:         voices,
	})
}

func displayName(id string) string {
	if id == "" {
		return ""
	}
	return strings.ToUpper(id[:1]) + id[1:]
}
