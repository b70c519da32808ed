package tts

import (
	"context"
	"fmt"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
)

// GoogleTTS implements domain.Speaker on the Google Cloud Text-to-Speech
// API. Credentials come from the ambient Google application default
// credentials.
type GoogleTTS struct {
	client       *texttospeech.Client
	languageCode string
	voice        string
}

func NewGoogleTTS(ctx context.Context, languageCode, voice string) (*GoogleTTS, error) {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating Google tts client: %w", err)
	}
	if languageCode == "" {
		languageCode = "en-US"
	}
	return &GoogleTTS{
		client:       client,
		languageCode: languageCode,
		voice:        voice,
	}, nil
}

// Synthesize implements domain.Speaker. The reply comes back as MP3 bytes.
func (g *GoogleTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	req := texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{
				Text: text,
			},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: g.languageCode,
			Name:         g.voice,
			SsmlGender:   texttospeechpb.SsmlVoiceGender_NEUTRAL,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
		},
	}
	resp, err := g.client.SynthesizeSpeech(ctx, &req)
	if err != nil {
		return nil, fmt.Errorf("synthesizing speech: %w", err)
	}

	return resp.GetAudioContent(), nil
}

// Close releases the underlying gRPC connection.
func (g *GoogleTTS) Close() error {
	return g.client.Close()
}
