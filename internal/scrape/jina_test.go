package scrape

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/icp-analyzer/pkg/jina"
)

type stubReader struct {
	resp *jina.ReadResponse
	err  error
}

func (s *stubReader) Read(_ context.Context, _ string) (*jina.ReadResponse, error) {
	return s.resp, s.err
}

func TestJinaFetch_BlockquoteFragments(t *testing.T) {
	md := "# Customers\n\n" +
		"> The reporting dashboards finally give our leadership real visibility into pipeline health.\n" +
		"> — Casey, RevOps Lead\n\n" +
		"Some marketing copy in between that is not a quote at all, just filler text.\n\n" +
		"\"Switching to Acme meant our small team could scale support without hiring.\" — Sam\n"

	s := NewJinaScraper(&stubReader{resp: &jina.ReadResponse{Data: jina.ReadData{Content: md}}}, 40)
	frags, err := s.Fetch(context.Background(), "https://acme.example.com")
	require.NoError(t, err)
	require.Len(t, frags, 2)
	assert.Contains(t, frags[0].Text, "reporting dashboards")
	assert.Contains(t, frags[1].Text, "scale support")
}

func TestJinaFetch_EmptyContentIsParseError(t *testing.T) {
	s := NewJinaScraper(&stubReader{resp: &jina.ReadResponse{}}, 40)
	_, err := s.Fetch(context.Background(), "https://acme.example.com")
	require.Error(t, err)
	assert.Equal(t, FailParse, KindOf(err))
}

func TestJinaFetch_ClientError(t *testing.T) {
	s := NewJinaScraper(&stubReader{err: context.DeadlineExceeded}, 40)
	_, err := s.Fetch(context.Background(), "https://acme.example.com")
	require.Error(t, err)
	assert.Equal(t, FailTimeout, KindOf(err))
}
