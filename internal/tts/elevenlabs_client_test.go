package tts

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"

	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/config"
)

func newTestElevenLabs(baseURL string) *ElevenLabsClient {
	return NewElevenLabsClient(&config.Config{
		ElevenLabsAPIKey:  "test-key",
		ElevenLabsBaseURL: baseURL + "/",
		ElevenLabsModelID: "eleven_turbo_v2",
	})
}

func TestElevenLabs_Synthesize(t *testing.T) {
	var gotPath, gotKey, gotAccept string
	var gotBody ElevenLabsRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		gotAccept = r.Header.Get("Accept")
		body, _ := io.ReadAll(r.Body)
		if err := sonic.Unmarshal(body, &gotBody); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(mp3Bytes)
	}))
	defer srv.Close()

	client := newTestElevenLabs(srv.URL)
	audio, err := client.Synthesize(context.Background(), SynthesisRequest{
		Text:      "Hello there, friend.",
		VoiceID:   "EXAVITQu4vr4xnSDxMaL",
		VoiceName: "Rachel",
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(audio) != len(mp3Bytes) {
		t.Errorf("Expected %d audio bytes, got %d", len(mp3Bytes), len(audio))
	}
	if gotPath != "/EXAVITQu4vr4xnSDxMaL/stream" {
		t.Errorf("Expected voice stream path, got %s", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("Expected api key header, got %q", gotKey)
	}
	if gotAccept != "audio/mpeg" {
		t.Errorf("Expected Accept audio/mpeg, got %q", gotAccept)
	}
	if gotBody.Text != "Hello there, friend." || gotBody.ModelID != "eleven_turbo_v2" {
		t.Errorf("Unexpected request body: %+v", gotBody)
	}
	if gotBody.VoiceSettings.Stability != 0.5 || gotBody.VoiceSettings.SimilarityBoost != 0.75 {
		t.Errorf("Unexpected voice settings: %+v", gotBody.VoiceSettings)
	}
}

func TestElevenLabs_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":{"status":"quota_exceeded","message":"This request exceeds your quota"}}` + strings.Repeat(" ", 1024)))
	}))
	defer srv.Close()

	_, err := newTestElevenLabs(srv.URL).Synthesize(context.Background(), SynthesisRequest{Text: "Hello there", VoiceID: "abc"})

	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected ProviderError, got %v", err)
	}
	if perr.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", perr.StatusCode)
	}
	if len(perr.Body) > maxErrorBody {
		t.Errorf("Expected body capped at %d bytes, got %d", maxErrorBody, len(perr.Body))
	}
	if ClassifyError(err) != SkipQuotaExceeded {
		t.Errorf("Expected quota body to classify as quota_exceeded, got %q", ClassifyError(err))
	}
}

func TestElevenLabs_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestElevenLabs(srv.URL).Synthesize(context.Background(), SynthesisRequest{Text: "Hello there", VoiceID: "abc"})
	if err == nil {
		t.Fatal("Expected error for 502")
	}
	if ClassifyError(err) != SkipAPIError {
		t.Errorf("Expected api_error, got %q", ClassifyError(err))
	}
}

func TestElevenLabs_HealthCheck(t *testing.T) {
	ok, err := newTestElevenLabs("http://localhost").HealthCheck(context.Background())
	if !ok || err != nil {
		t.Errorf("Expected healthy with key, got %v, %v", ok, err)
	}

	client := NewElevenLabsClient(&config.Config{})
	ok, err = client.HealthCheck(context.Background())
	if ok || err == nil {
		t.Error("Expected unhealthy without key")
	}
}
