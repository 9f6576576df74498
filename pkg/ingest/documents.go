package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/netsentry/conductor/pkg/config"
	"github.com/netsentry/conductor/pkg/models"
	"github.com/netsentry/conductor/pkg/store"
)

// ingestDocuments handles the runbooks and tickets kinds: upload every
// document in the archive to the kind's blob container (overwrite), then
// trigger a search-index build over that container.
func (p *Pipeline) ingestDocuments(ctx context.Context, dir, nameOverride string, kind config.UploadKind, source string) (string, map[string]int, error) {
	m, err := loadOptionalManifest(dir)
	if err != nil {
		return "", nil, err
	}
	name, err := resolveName(nameOverride, m.Name)
	if err != nil {
		return "", nil, err
	}
	if p.blobs == nil || p.search == nil {
		return name, nil, fmt.Errorf("no blob store / search indexer is configured")
	}

	docs, err := listFiles(dir)
	if err != nil {
		return name, nil, err
	}
	if len(docs) == 0 {
		return name, nil, fmt.Errorf("%w: archive contains no documents", ErrValidation)
	}

	container := fmt.Sprintf("%s-%s", name, kind)
	indexName := fmt.Sprintf("%s-%s-index", name, kind)

	p.progress(source, "creating_container", container, 5)
	if err := p.blobs.EnsureContainer(ctx, container); err != nil {
		return name, nil, fmt.Errorf("create blob container %s: %w", container, err)
	}

	counts := map[string]int{"documents": 0}
	for i, doc := range docs {
		data, err := os.ReadFile(filepath.Join(dir, doc))
		if err != nil {
			return name, counts, err
		}
		if err := p.blobs.Upload(ctx, container, doc, data); err != nil {
			return name, counts, fmt.Errorf("upload %s: %w", doc, err)
		}
		counts["documents"]++
		p.progress(source, "uploading_documents", fmt.Sprintf("%d/%d", i+1, len(docs)), 5+(85*(i+1))/len(docs))
	}

	p.progress(source, "building_index", indexName, 95)
	if err := p.search.EnsureIndex(ctx, indexName, container); err != nil {
		return name, counts, fmt.Errorf("build search index %s: %w", indexName, err)
	}
	return name, counts, nil
}

// ingestPrompts handles the prompts kind: markdown files organized by
// agent, persisted as prompt documents keyed "{scenario}__{agent}__v1".
// Both flat layout (graph-explorer.md) and per-agent directories
// (graph-explorer/prompt.md, fragments concatenated in filename order) are
// accepted.
func (p *Pipeline) ingestPrompts(ctx context.Context, dir, nameOverride, source string) (string, map[string]int, error) {
	m, err := loadOptionalManifest(dir)
	if err != nil {
		return "", nil, err
	}
	name, err := resolveName(nameOverride, m.Name)
	if err != nil {
		return "", nil, err
	}

	byAgent, err := collectPromptsByAgent(dir)
	if err != nil {
		return name, nil, err
	}
	if len(byAgent) == 0 {
		return name, nil, fmt.Errorf("%w: archive contains no markdown prompts", ErrValidation)
	}

	counts := map[string]int{"prompts": 0}
	i := 0
	for agent, content := range byAgent {
		id := models.PromptID(name, agent, 1)
		if !models.ValidDocumentID(id) {
			return name, counts, fmt.Errorf("%w: agent name %q produces an invalid document id", ErrValidation, agent)
		}
		doc := store.Document{ID: id, Body: map[string]any{
			"id":         id,
			"scenario":   name,
			"agent":      agent,
			"version":    1,
			"content":    content,
			"updated_at": time.Now().UTC().Format(time.RFC3339),
		}}
		if err := p.store.Upsert(ctx, store.ContainerPrompts, doc); err != nil {
			return name, counts, fmt.Errorf("upsert prompt %s: %w", id, err)
		}
		counts["prompts"]++
		i++
		p.progress(source, "upserting_prompts", agent, (95*i)/len(byAgent))
	}
	return name, counts, nil
}

// collectPromptsByAgent walks the archive for markdown files. A top-level
// "agent.md" is that agent's whole prompt; files under an "agent/"
// directory are fragments concatenated in filename order.
func collectPromptsByAgent(dir string) (map[string]string, error) {
	files, err := listFiles(dir)
	if err != nil {
		return nil, err
	}
	byAgent := make(map[string][]string)
	for _, rel := range files {
		if !strings.HasSuffix(rel, ".md") {
			continue
		}
		parts := strings.SplitN(filepath.ToSlash(rel), "/", 2)
		agent := strings.TrimSuffix(parts[0], ".md")
		data, err := os.ReadFile(filepath.Join(dir, rel))
		if err != nil {
			return nil, err
		}
		byAgent[agent] = append(byAgent[agent], string(data))
	}
	out := make(map[string]string, len(byAgent))
	for agent, fragments := range byAgent {
		out[agent] = strings.Join(fragments, "\n\n")
	}
	return out, nil
}

// listFiles returns every regular file under dir (relative paths, sorted
// by the walk order, manifest excluded).
func listFiles(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == manifestFileName {
			return nil
		}
		out = append(out, rel)
		return nil
	})
	return out, err
}
