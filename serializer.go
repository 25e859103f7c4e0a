package privatehttpcache

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

//An Entry is a stored response.
// An entry is either fully present in storage or absent, readers never
// observe a partially written entry. The write discipline of the storage
// backends upholds this.
type Entry struct {
	StatusCode int
	Status     string
	Header     http.Header

	//Body holds the response body for unified storage backends.
	// It is nil when the body lives in a separate-body backend.
	Body []byte

	//StoredAt is the time the entry was committed to storage.
	// It is refreshed when a revalidation succeeds.
	StoredAt time.Time
}

//A Serializer converts entries to and from their stored byte representation.
// The wire format is opaque to the cache controller, a decode failure is
// treated as a cache miss and never surfaced to the caller.
type Serializer interface {
	Encode(entry *Entry) ([]byte, error)
	Decode(data []byte) (*Entry, error)
}

//storedAtHeader carries the storage timestamp inside the serialized
// representation. It is stripped again on decode and never leaves the store.
const storedAtHeader = "X-Cache-Stored-At"

//The WireSerializer stores entries in the HTTP/1.1 wire format:
// a status line, the response headers, an empty line and the raw body.
type WireSerializer struct{}

func (WireSerializer) Encode(entry *Entry) ([]byte, error) {
	buf := &bytes.Buffer{}

	status := entry.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", entry.StatusCode, http.StatusText(entry.StatusCode))
	}

	fmt.Fprintf(buf, "HTTP/1.1 %s\r\n", status)

	header := entry.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set(storedAtHeader, strconv.FormatInt(entry.StoredAt.Unix(), 10))

	if err := header.Write(buf); err != nil {
		return nil, err
	}

	buf.WriteString("\r\n")
	buf.Write(entry.Body)

	return buf.Bytes(), nil
}

func (WireSerializer) Decode(data []byte) (*Entry, error) {
	reader := bufio.NewReader(bytes.NewReader(data))

	statusLine, err := reader.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("unable to read status line: %w", err)
	}

	_, status, found := strings.Cut(strings.TrimRight(statusLine, "\r\n"), " ")
	if !found {
		return nil, fmt.Errorf("malformed status line: %q", statusLine)
	}

	codeString, _, _ := strings.Cut(status, " ")
	statusCode, err := strconv.Atoi(codeString)
	if err != nil {
		return nil, fmt.Errorf("malformed status code: %w", err)
	}

	mimeHeader, err := textproto.NewReader(reader).ReadMIMEHeader()
	if err != nil {
		return nil, fmt.Errorf("unable to read headers: %w", err)
	}
	header := http.Header(mimeHeader)

	storedAt := time.Time{}
	if storedAtString := header.Get(storedAtHeader); storedAtString != "" {
		unix, err := strconv.ParseInt(storedAtString, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed storage timestamp: %w", err)
		}
		storedAt = time.Unix(unix, 0)
	}
	header.Del(storedAtHeader)

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("unable to read body: %w", err)
	}
	if len(body) == 0 {
		body = nil
	}

	return &Entry{
		StatusCode: statusCode,
		Status:     status,
		Header:     header,
		Body:       body,
		StoredAt:   storedAt,
	}, nil
}
