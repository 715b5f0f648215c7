package transport

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// Headers are the envelope headers written by BuildMIME. An empty To is
// omitted. Shared payloads also leave out Date and Message-ID; WithRecipient
// adds all three per recipient.
type Headers struct {
	From    string
	To      string
	Subject string
	Shared  bool
}

const lineLen = 76

// BuildMIME renders an HTML message with optional attachments as an RFC 5322
// payload with CRLF line endings.
func BuildMIME(h Headers, htmlBody string, attachments []domain.ResolvedAttachment) ([]byte, error) {
	var buf bytes.Buffer

	if h.From != "" {
		writeHeader(&buf, "From", h.From)
	}
	if h.To != "" && !h.Shared {
		writeHeader(&buf, "To", h.To)
	}
	writeHeader(&buf, "Subject", encodeHeader(h.Subject))
	if !h.Shared {
		writeIdentity(&buf)
	}
	writeHeader(&buf, "MIME-Version", "1.0")

	if len(attachments) == 0 {
		writeHeader(&buf, "Content-Type", `text/html; charset="UTF-8"`)
		writeHeader(&buf, "Content-Transfer-Encoding", "quoted-printable")
		buf.WriteString("\r\n")
		if err := writeQuotedPrintable(&buf, htmlBody); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	writeHeader(&buf, "Content-Type", `multipart/mixed; boundary="`+mw.Boundary()+`"`)
	buf.WriteString("\r\n")

	bodyHeader := textproto.MIMEHeader{}
	bodyHeader.Set("Content-Type", `text/html; charset="UTF-8"`)
	bodyHeader.Set("Content-Transfer-Encoding", "quoted-printable")
	part, err := mw.CreatePart(bodyHeader)
	if err != nil {
		return nil, fmt.Errorf("creating body part: %w", err)
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(htmlBody)); err != nil {
		return nil, fmt.Errorf("encoding body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("encoding body: %w", err)
	}

	for _, a := range attachments {
		part, err := mw.CreatePart(attachmentHeader(a.Name, a.MIMEType))
		if err != nil {
			return nil, fmt.Errorf("creating attachment part %s: %w", a.Name, err)
		}
		if err := writeWrapped(part, a.BytesBase64); err != nil {
			return nil, fmt.Errorf("writing attachment %s: %w", a.Name, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart: %w", err)
	}
	return buf.Bytes(), nil
}

// WithRecipient addresses a shared payload: it prepends To, Date and a
// fresh Message-ID so no two recipients share a message identity.
func WithRecipient(payload []byte, to string) []byte {
	var buf bytes.Buffer
	buf.Grow(len(payload) + len(to) + 128)
	writeHeader(&buf, "To", to)
	writeIdentity(&buf)
	buf.Write(payload)
	return buf.Bytes()
}

// writeIdentity writes the per-message Date and Message-ID headers.
func writeIdentity(buf *bytes.Buffer) {
	writeHeader(buf, "Date", time.Now().UTC().Format(time.RFC1123Z))
	writeHeader(buf, "Message-ID", "<"+uuid.NewString()+"@campaign-dispatch>")
}

func attachmentHeader(filename, contentType string) textproto.MIMEHeader {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if filename == "" {
		filename = "attachment"
	}
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", mime.FormatMediaType(contentType, map[string]string{"name": filename}))
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	h.Set("Content-Transfer-Encoding", "base64")
	return h
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	// Strip CR/LF so user-controlled values cannot inject headers
	value = strings.NewReplacer("\r", "", "\n", "").Replace(value)
	buf.WriteString(key)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}

func encodeHeader(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return mime.QEncoding.Encode("UTF-8", s)
		}
	}
	return s
}

func writeQuotedPrintable(buf *bytes.Buffer, body string) error {
	qp := quotedprintable.NewWriter(buf)
	if _, err := qp.Write([]byte(body)); err != nil {
		return fmt.Errorf("encoding body: %w", err)
	}
	return qp.Close()
}

// writeWrapped writes base64 text in lineLen-wide CRLF lines. The input is
// normalized through a decode/encode round so any embedded whitespace is dropped.
func writeWrapped(w io.Writer, b64 string) error {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return fmt.Errorf("attachment payload is not base64: %w", err)
	}
	enc := base64.StdEncoding.EncodeToString(raw)
	for len(enc) > 0 {
		n := lineLen
		if len(enc) < n {
			n = len(enc)
		}
		if _, err := w.Write([]byte(enc[:n] + "\r\n")); err != nil {
			return err
		}
		enc = enc[n:]
	}
	return nil
}
