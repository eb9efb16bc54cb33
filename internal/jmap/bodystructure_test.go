package jmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAttachment(t *testing.T) {
	tests := []struct {
		name string
		part BodyPart
		want bool
	}{
		{
			name: "attachment disposition",
			part: BodyPart{Type: "application/pdf", Disposition: "attachment"},
			want: true,
		},
		{
			name: "named part without disposition",
			part: BodyPart{Type: "image/png", Name: "diagram.png"},
			want: true,
		},
		{
			name: "named text part without disposition",
			part: BodyPart{Type: "text/plain", Name: "note.txt"},
			want: false,
		},
		{
			name: "named html part without disposition",
			part: BodyPart{Type: "text/html", Name: "page.html"},
			want: false,
		},
		{
			name: "named text part disposed as attachment",
			part: BodyPart{Type: "text/plain", Name: "note.txt", Disposition: "attachment"},
			want: true,
		},
		{
			name: "inline body text",
			part: BodyPart{Type: "text/plain", Disposition: "inline"},
			want: false,
		},
		{
			name: "multipart never counts",
			part: BodyPart{
				Type:        "multipart/mixed",
				Disposition: "attachment",
				SubParts:    []BodyPart{{Type: "text/plain"}},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.part.isAttachment())
		})
	}
}

func TestEmailAttachments(t *testing.T) {
	e := Email{
		BodyStructure: &BodyPart{
			Type: "multipart/mixed",
			SubParts: []BodyPart{
				{
					Type: "multipart/alternative",
					SubParts: []BodyPart{
						{PartID: "1.1", Type: "text/plain"},
						{PartID: "1.2", Type: "text/html"},
					},
				},
				{PartID: "2", Type: "application/pdf", Name: "invoice.pdf", BlobID: "b-2"},
				{PartID: "3", Type: "image/png", Disposition: "attachment", BlobID: "b-3"},
			},
		},
	}

	atts := e.Attachments()
	require.Len(t, atts, 2)
	assert.Equal(t, "b-2", atts[0].BlobID)
	assert.Equal(t, "b-3", atts[1].BlobID)
	assert.True(t, e.HasAttachments())
}

func TestHasAttachmentsFallsBackToHint(t *testing.T) {
	e := Email{HasAttachmentHint: true}
	assert.True(t, e.HasAttachments(), "without a body structure the server hint decides")

	e = Email{
		HasAttachmentHint: true,
		BodyStructure:     &BodyPart{Type: "text/plain"},
	}
	assert.False(t, e.HasAttachments(), "a fetched body structure overrides the hint")
}
