package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	_ "modernc.org/sqlite"

	"github.com/vanderheijden86/viewtree/pkg/debug"
)

// Schema is the adjacency table LoadSQLite reads. Rows with an empty or
// NULL parent are roots; siblings are ordered by position, then id.
const Schema = `CREATE TABLE IF NOT EXISTS nodes (
	id       TEXT PRIMARY KEY,
	parent   TEXT,
	label    TEXT,
	position INTEGER NOT NULL DEFAULT 0
)`

type row struct {
	id, parent, label string
}

// LoadSQLite reads the nodes table of the database at path. Multiple roots
// are wrapped in a synthetic root named after the file. Rows whose parent
// does not exist are treated as roots.
func LoadSQLite(ctx context.Context, path string) (Item, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return Item{}, fmt.Errorf("cannot open database: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
		SELECT id, COALESCE(parent, ''), COALESCE(label, '')
		FROM nodes
		ORDER BY position, id
	`)
	if err != nil {
		return Item{}, fmt.Errorf("querying nodes in %s: %w", path, err)
	}
	defer rows.Close()

	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.parent, &r.label); err != nil {
			return Item{}, fmt.Errorf("scanning node: %w", err)
		}
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		return Item{}, err
	}
	if len(all) == 0 {
		return Item{}, ErrEmpty
	}

	root, err := buildTree(all, Source{Type: SourceTypeSQLite, Path: path}.Name())
	if err != nil {
		return Item{}, fmt.Errorf("%s: %w", path, err)
	}
	return root, nil
}

// buildTree assembles rows into a tree after rejecting cyclic parent links.
func buildTree(all []row, rootID string) (Item, error) {
	byID := make(map[string]int, len(all))
	for i, r := range all {
		byID[r.id] = i
	}

	g := simple.NewDirectedGraph()
	for i := range all {
		g.AddNode(simple.Node(i))
	}
	kids := make(map[string][]int)
	var roots []int
	for i, r := range all {
		if r.parent == r.id {
			return Item{}, fmt.Errorf("%w: %s is its own parent", ErrCycle, r.id)
		}
		p, ok := byID[r.parent]
		if r.parent == "" || !ok {
			if r.parent != "" {
				debug.Log("datasource: %s has missing parent %s, treating as root", r.id, r.parent)
			}
			roots = append(roots, i)
			continue
		}
		g.SetEdge(g.NewEdge(simple.Node(p), simple.Node(i)))
		kids[r.parent] = append(kids[r.parent], i)
	}

	if _, err := topo.Sort(g); err != nil {
		var cycles topo.Unorderable
		if errors.As(err, &cycles) && len(cycles) > 0 {
			ids := make([]string, len(cycles[0]))
			for i, n := range cycles[0] {
				ids[i] = all[n.ID()].id
			}
			return Item{}, fmt.Errorf("%w: %s", ErrCycle, strings.Join(ids, " -> "))
		}
		return Item{}, fmt.Errorf("%w: %v", ErrCycle, err)
	}

	var build func(i int) Item
	build = func(i int) Item {
		r := all[i]
		it := Item{ID: r.id, Label: r.label}
		for _, k := range kids[r.id] {
			it.Children = append(it.Children, build(k))
		}
		return it
	}

	var root Item
	if len(roots) == 1 {
		root = build(roots[0])
	} else {
		root = Item{ID: rootID}
		for _, i := range roots {
			root.Children = append(root.Children, build(i))
		}
	}
	root.Seal()
	return root, nil
}

// WriteSQLite replaces the nodes table at path with root's subtree.
func WriteSQLite(ctx context.Context, path string, root Item) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("cannot open database: %w", err)
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO nodes (id, parent, label, position) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	var insert func(it Item, parent string, pos int) error
	insert = func(it Item, parent string, pos int) error {
		var p any
		if parent != "" {
			p = parent
		}
		if _, err := stmt.ExecContext(ctx, it.ID, p, it.Label, pos); err != nil {
			return fmt.Errorf("inserting %s: %w", it.ID, err)
		}
		for i, c := range it.Children {
			if err := insert(c, it.ID, i); err != nil {
				return err
			}
		}
		return nil
	}
	if err := insert(root, "", 0); err != nil {
		return err
	}
	return tx.Commit()
}
