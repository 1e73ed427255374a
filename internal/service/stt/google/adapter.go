// Package google provides a Google Cloud Speech-to-Text recognizer.
package google

import (
	"context"
	"encoding/binary"
	"fmt"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "google.golang.org/genproto/googleapis/cloud/speech/v1"

	"market-voice-ledger/internal/models"
	"market-voice-ledger/internal/service/stt"
)

// Adapter implements stt.Recognizer using Google Cloud Speech-to-Text.
// One synchronous Recognize call per sealed utterance.
type Adapter struct {
	client *speech.Client
}

// New creates a new Google recognizer.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Adapter{client: c}, nil
}

// Recognize transcribes the utterance audio.
func (a *Adapter) Recognize(ctx context.Context, u *models.Utterance, language string) (stt.Result, error) {
	resp, err := a.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz: int32(u.SampleRate),
			LanguageCode:    language,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{
				Content: pcmBytes(u.Samples),
			},
		},
	})
	if err != nil {
		return stt.Result{}, fmt.Errorf("google recognize: %w", err)
	}

	// Take the top alternative of the first result; utterances are short
	// enough that providers return a single result.
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		return stt.Result{
			Transcript: alt.Transcript,
			Confidence: float64(alt.Confidence),
		}, nil
	}
	return stt.Result{}, nil
}

// Close releases the underlying client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// pcmBytes converts int16 samples to LINEAR16 little-endian bytes.
func pcmBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
