package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrNotSupported_MessageNamesBackend(t *testing.T) {
	err := &ErrNotSupported{Backend: ConnectorKQL}
	assert.Equal(t, "backend kql does not support ingestion", err.Error())
}

func TestKQL_GetTopologyAndIngestAreNotSupported(t *testing.T) {
	k := &KQL{}
	_, err := k.GetTopology(context.Background(), "", nil)
	require.Error(t, err)
	var notSupported *ErrNotSupported
	assert.ErrorAs(t, err, &notSupported)

	_, err = k.Ingest(context.Background(), nil, nil, IngestInput{})
	require.Error(t, err)
	assert.ErrorAs(t, err, &notSupported)
}

func TestSQL_GetTopologyAndIngestAreNotSupported(t *testing.T) {
	s := &SQL{}
	_, err := s.GetTopology(context.Background(), "", nil)
	require.Error(t, err)
	var notSupported *ErrNotSupported
	assert.ErrorAs(t, err, &notSupported)

	_, err = s.Ingest(context.Background(), nil, nil, IngestInput{})
	require.Error(t, err)
	assert.ErrorAs(t, err, &notSupported)
}
