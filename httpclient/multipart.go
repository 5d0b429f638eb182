package httpclient

import (
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
)

// MultipartBody represents a multipart/form-data request body.
// Pass this as the Body field of a Request to automatically construct
// multipart encoding with the correct Content-Type header.
//
// The body is produced through a pipe while the request is sent, so file
// readers are streamed rather than buffered. A Reader can be consumed only
// once; retried requests must use Data.
type MultipartBody struct {
	// Fields are simple key-value form fields, written in order.
	Fields []FormField
	// Files are file upload fields.
	Files []FileField
}

// FormField is a single text form field.
type FormField struct {
	Name  string
	Value string
}

// FileField represents a file to upload in a multipart request.
type FileField struct {
	// FieldName is the form field name (e.g., "file", "audio").
	FieldName string
	// FileName is the file name sent to the server.
	FileName string
	// ContentType is the MIME type (e.g., "audio/wav"). If empty, uses application/octet-stream.
	ContentType string
	// Data is the file content. Used if Reader is nil.
	Data []byte
	// Reader is an alternative to Data for large files (streaming upload).
	Reader io.Reader
}

// Add appends a form field.
func (m *MultipartBody) Add(name, value string) *MultipartBody {
	m.Fields = append(m.Fields, FormField{Name: name, Value: value})
	return m
}

// encode starts writing the multipart body into a pipe and returns its read
// side with the content-type header.
func (m *MultipartBody) encode() (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	w := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(m.write(w))
	}()

	return pr, w.FormDataContentType()
}

func (m *MultipartBody) write(w *multipart.Writer) error {
	for _, f := range m.Fields {
		if err := w.WriteField(f.Name, f.Value); err != nil {
			return err
		}
	}

	for _, f := range m.Files {
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition",
			`form-data; name="`+escapeQuotes(f.FieldName)+`"; filename="`+escapeQuotes(f.FileName)+`"`)
		header.Set("Content-Type", contentType)
		part, err := w.CreatePart(header)
		if err != nil {
			return err
		}

		if f.Data != nil {
			if _, err := part.Write(f.Data); err != nil {
				return err
			}
		} else if f.Reader != nil {
			if _, err := io.Copy(part, f.Reader); err != nil {
				return err
			}
		}
	}

	return w.Close()
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
