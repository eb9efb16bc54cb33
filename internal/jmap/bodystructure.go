package jmap

import "strings"

// BodyPart is one node of an email's body-structure tree, decoded once at
// parse time: either a leaf part or a multipart with SubParts.
type BodyPart struct {
	PartID      string     `json:"partId,omitempty"`
	BlobID      string     `json:"blobId,omitempty"`
	Type        string     `json:"type,omitempty"`
	Charset     string     `json:"charset,omitempty"`
	Disposition string     `json:"disposition,omitempty"`
	Name        string     `json:"name,omitempty"`
	Size        int64      `json:"size,omitempty"`
	CID         string     `json:"cid,omitempty"`
	SubParts    []BodyPart `json:"subParts,omitempty"`
}

// IsMultipart reports whether the node has children.
func (p *BodyPart) IsMultipart() bool {
	return len(p.SubParts) > 0
}

// isAttachment applies the attachment heuristic: a part counts when its
// disposition is "attachment" or it carries a filename, except bare
// text/plain and text/html parts without an attachment disposition. Real
// JMAP servers routinely omit disposition, so the filename alternative must
// stay; tightening this regresses against such servers.
func (p *BodyPart) isAttachment() bool {
	if p.IsMultipart() {
		return false
	}
	if strings.EqualFold(p.Disposition, "attachment") {
		return true
	}
	if p.Name == "" {
		return false
	}
	switch strings.ToLower(p.Type) {
	case "text/plain", "text/html":
		// A named text part is only an attachment when disposed as one.
		return false
	default:
		return true
	}
}

// Walk visits every node of the tree depth-first, root included.
func (p *BodyPart) Walk(fn func(*BodyPart)) {
	if p == nil {
		return
	}
	fn(p)
	for i := range p.SubParts {
		p.SubParts[i].Walk(fn)
	}
}

// Attachments returns the leaf parts the heuristic classifies as
// attachments, in document order.
func (e *Email) Attachments() []BodyPart {
	var out []BodyPart
	e.BodyStructure.Walk(func(p *BodyPart) {
		if p.isAttachment() {
			out = append(out, *p)
		}
	})
	return out
}

// HasAttachments derives attachment presence from the body structure. The
// server's hasAttachment boolean is consulted only when no body structure
// was fetched.
func (e *Email) HasAttachments() bool {
	if e.BodyStructure == nil {
		return e.HasAttachmentHint
	}
	return len(e.Attachments()) > 0
}
