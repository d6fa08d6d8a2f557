package extract

import (
	"strings"

	"github.com/cockroachdb/cockroachdb-parser/pkg/sql/sem/tree"
	"github.com/cockroachdb/errors"
	"github.com/pingcap/tidb/parser/ast"
	"github.com/pingcap/tidb/parser/format"
	"github.com/pingcap/tidb/parser/model"
)

const (
	mysqlColumns = `SELECT column_name FROM information_schema.columns
WHERE table_schema = database() AND table_name = ?
ORDER BY ordinal_position`
	pgColumns = `SELECT column_name::text FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1
ORDER BY ordinal_position`
)

// pgSelectAll renders a full table scan ordered by orderBy.
func pgSelectAll(table string, columns, orderBy []string) string {
	tn := tree.MakeUnqualifiedTableName(tree.Name(table))
	selectClause := &tree.SelectClause{
		From: tree.From{
			Tables: tree.TableExprs{&tn},
		},
	}
	for _, col := range columns {
		selectClause.Exprs = append(
			selectClause.Exprs,
			tree.SelectExpr{Expr: tree.NewUnresolvedName(col)},
		)
	}
	stmt := &tree.Select{Select: selectClause}
	for _, col := range orderBy {
		stmt.OrderBy = append(stmt.OrderBy, &tree.Order{Expr: tree.NewUnresolvedName(col)})
	}
	f := tree.NewFmtCtx(tree.FmtSimple)
	f.FormatNode(stmt)
	return f.CloseAndGetString()
}

func mysqlColumnField(name string) *ast.ColumnNameExpr {
	return &ast.ColumnNameExpr{
		Name: &ast.ColumnName{
			Name: model.NewCIStr(name),
		},
	}
}

func mysqlSelectAll(table string, columns, orderBy []string) (string, error) {
	fields := &ast.FieldList{
		Fields: make([]*ast.SelectField, len(columns)),
	}
	for i, col := range columns {
		fields.Fields[i] = &ast.SelectField{Expr: mysqlColumnField(col)}
	}
	stmt := &ast.SelectStmt{
		SelectStmtOpts: &ast.SelectStmtOpts{
			SQLCache: true,
		},
		From: &ast.TableRefsClause{
			TableRefs: &ast.Join{
				Left: &ast.TableSource{
					Source: &ast.TableName{Name: model.NewCIStr(table)},
				},
			},
		},
		Fields: fields,
		Kind:   ast.SelectStmtKindSelect,
	}
	if len(orderBy) > 0 {
		stmt.OrderBy = &ast.OrderByClause{
			Items: make([]*ast.ByItem, len(orderBy)),
		}
		for i, col := range orderBy {
			stmt.OrderBy.Items[i] = &ast.ByItem{Expr: mysqlColumnField(col)}
		}
	}
	var sb strings.Builder
	if err := stmt.Restore(format.NewRestoreCtx(format.DefaultRestoreFlags, &sb)); err != nil {
		return "", errors.Wrap(err, "error generating MySQL statement")
	}
	return sb.String(), nil
}

// orderColumns orders by the primary key, falling back to the secondary
// key and then every column so iteration order is stable.
func orderColumns(pk, secondary, columns []string) []string {
	switch {
	case len(pk) > 0:
		return pk
	case len(secondary) > 0:
		return secondary
	}
	return columns
}
