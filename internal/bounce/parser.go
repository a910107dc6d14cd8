// Package bounce reads delivery status notifications from the bounce mailbox
// and marks the addressed campaign recipients as Bounced.
package bounce

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/textproto"
)

// Report is one bounce notification reduced to what the sweep needs
type Report struct {
	MessageID  string
	Recipients []string
	// OriginalMessageIDs are the Message-IDs of the returned messages, read
	// from text/rfc822-headers and message/rfc822 parts
	OriginalMessageIDs []string
}

// Parse reads a raw RFC 5322 message and collects the permanently failed
// recipients it reports. Recipients come from the X-Failed-Recipients header
// and from Final-Recipient fields of message/delivery-status parts whose
// Action is "failed". A message that is not a bounce yields no recipients.
// The headers of the returned message, when included, name the original
// Message-ID.
func Parse(r io.Reader) (*Report, error) {
	entity, err := message.Read(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}

	report := &Report{MessageID: strings.TrimSpace(entity.Header.Get("Message-Id"))}
	found := make(map[string]struct{})

	for _, addr := range strings.Split(entity.Header.Get("X-Failed-Recipients"), ",") {
		addAddress(found, addr)
	}

	if err := walk(entity, found, report); err != nil {
		return nil, err
	}

	report.Recipients = make([]string, 0, len(found))
	for addr := range found {
		report.Recipients = append(report.Recipients, addr)
	}
	sort.Strings(report.Recipients)
	return report, nil
}

func walk(entity *message.Entity, found map[string]struct{}, report *Report) error {
	if mr := entity.MultipartReader(); mr != nil {
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil && !message.IsUnknownCharset(err) {
				return fmt.Errorf("failed to read part: %w", err)
			}
			if err := walk(p, found, report); err != nil {
				return err
			}
		}
	}

	mediaType, _, _ := entity.Header.ContentType()
	switch mediaType {
	case "message/delivery-status":
		content, err := io.ReadAll(entity.Body)
		if err != nil {
			return fmt.Errorf("failed to read delivery status: %w", err)
		}
		return parseDeliveryStatus(content, found)
	case "text/rfc822-headers", "message/rfc822":
		// the returned message is only a source of its Message-ID; a broken
		// copy does not invalidate the report
		content, err := io.ReadAll(entity.Body)
		if err != nil {
			return nil
		}
		h, err := readHeaderBlock(content)
		if err != nil {
			return nil
		}
		if id := strings.TrimSpace(h.Get("Message-Id")); id != "" {
			report.OriginalMessageIDs = append(report.OriginalMessageIDs, id)
		}
	}
	return nil
}

// readHeaderBlock parses the header section at the start of content
func readHeaderBlock(content []byte) (textproto.Header, error) {
	content = bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if i := bytes.Index(content, []byte("\n\n")); i >= 0 {
		content = content[:i]
	}
	content = bytes.TrimLeft(content, "\n")
	return textproto.ReadHeader(bufio.NewReader(bytes.NewReader(append(content, '\n', '\n'))))
}

// parseDeliveryStatus reads the per-message block followed by one block per
// recipient, each a header section separated by a blank line.
func parseDeliveryStatus(content []byte, found map[string]struct{}) error {
	content = bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))

	for _, block := range bytes.Split(content, []byte("\n\n")) {
		block = bytes.TrimSpace(block)
		if len(block) == 0 {
			continue
		}

		h, err := readHeaderBlock(block)
		if err != nil {
			return fmt.Errorf("malformed delivery status: %w", err)
		}

		recipient := h.Get("Final-Recipient")
		if recipient == "" {
			recipient = h.Get("Original-Recipient")
		}
		if recipient == "" {
			continue
		}
		if action := strings.ToLower(strings.TrimSpace(h.Get("Action"))); action != "" && action != "failed" {
			continue
		}

		// "rfc822; user@example.com"
		if i := strings.Index(recipient, ";"); i >= 0 {
			recipient = recipient[i+1:]
		}
		addAddress(found, recipient)
	}
	return nil
}

func addAddress(found map[string]struct{}, addr string) {
	addr = strings.ToLower(strings.Trim(strings.TrimSpace(addr), "<>"))
	if addr == "" || !strings.Contains(addr, "@") {
		return
	}
	found[addr] = struct{}{}
}
