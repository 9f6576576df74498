package ingest

import (
	"context"
	"fmt"
	"strconv"
)

// telemetryBatchSize bounds one UpsertRows call.
const telemetryBatchSize = 100

func (p *Pipeline) ingestTelemetry(ctx context.Context, dir, nameOverride, source string) (string, map[string]int, error) {
	var m telemetryManifest
	if err := loadManifest(dir, &m); err != nil {
		return "", nil, err
	}
	name, err := resolveName(nameOverride, m.Name)
	if err != nil {
		return "", nil, err
	}
	if p.telemetry == nil {
		return name, nil, fmt.Errorf("no telemetry store is configured")
	}
	if len(m.Containers) == 0 {
		return name, nil, fmt.Errorf("%w: manifest declares no containers", ErrValidation)
	}
	p.progress(source, "validating_schema", manifestFileName, 5)

	// Telemetry containers are prefixed with the scenario name, matching
	// the container-prefix derivation the context resolver applies at
	// query time; a manifest cannot rename the prefix for the same reason
	// the graph kind pins its "-topology" suffix.
	sctx := p.resolver.Resolve(ctx, name+"-topology")
	database := sctx.TelemetryDatabase

	// Parse and validate every container's CSV before the first
	// control-plane call, so a malformed file never leaves a half-created
	// database behind.
	type parsedContainer struct {
		decl telemetryContainerDecl
		rows []map[string]any
	}
	parsed := make([]parsedContainer, 0, len(m.Containers))
	for _, decl := range m.Containers {
		if decl.Name == "" || decl.File == "" {
			return name, nil, fmt.Errorf("%w: container declaration needs name and file", ErrValidation)
		}
		header, rows, err := readDeclaredCSV(dir, decl.File, decl.NumericColumns)
		if err != nil {
			return name, nil, err
		}
		parsed = append(parsed, parsedContainer{decl: decl, rows: coerceRows(header, rows, decl.NumericColumns)})
	}

	p.progress(source, "creating_database", database, 10)
	if err := p.telemetry.EnsureDatabase(ctx, database); err != nil {
		return name, nil, fmt.Errorf("create telemetry database %s: %w", database, err)
	}

	counts := map[string]int{}
	totalRows := 0
	for _, pc := range parsed {
		totalRows += len(pc.rows)
	}

	written := 0
	for _, pc := range parsed {
		container := name + "-" + pc.decl.Name
		if err := p.telemetry.EnsureContainer(ctx, database, container, pc.decl.PartitionKey); err != nil {
			return name, counts, fmt.Errorf("create container %s: %w", container, err)
		}
		for i := 0; i < len(pc.rows); i += telemetryBatchSize {
			end := min(i+telemetryBatchSize, len(pc.rows))
			if err := p.telemetry.UpsertRows(ctx, database, container, pc.rows[i:end]); err != nil {
				return name, counts, fmt.Errorf("upsert rows into %s: %w", container, err)
			}
			counts[pc.decl.Name] += end - i
			written += end - i
			pct := 10
			if totalRows > 0 {
				pct = 10 + (88*written)/totalRows
			}
			p.progress(source, "upserting_rows", fmt.Sprintf("%s %d/%d", container, counts[pc.decl.Name], len(pc.rows)), pct)
		}
	}
	return name, counts, nil
}

// coerceRows converts CSV rows to keyed documents, coercing the declared
// numeric columns to float64 where they parse.
func coerceRows(header []string, rows [][]string, numericColumns []string) []map[string]any {
	numeric := make(map[string]bool, len(numericColumns))
	for _, c := range numericColumns {
		numeric[c] = true
	}
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		doc := make(map[string]any, len(header))
		for i, col := range header {
			if i >= len(row) {
				break
			}
			if numeric[col] {
				if f, err := strconv.ParseFloat(row[i], 64); err == nil {
					doc[col] = f
					continue
				}
			}
			doc[col] = row[i]
		}
		out = append(out, doc)
	}
	return out
}
