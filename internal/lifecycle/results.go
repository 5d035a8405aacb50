package lifecycle

import (
	"context"
	"fmt"
	"iter"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
)

// MaxPageSize is the largest page GetQueryResults returns.
const MaxPageSize = 1000

type ResultColumn struct {
	Name string
	Type string
}

// RowPage is one page of an execution's result set. A NULL datum is nil,
// anything else is its string form.
type RowPage struct {
	Columns []ResultColumn
	Rows    [][]any
}

// Results pages through the results of a finished execution. Every range over
// the returned sequence starts again from the first page and stops at the
// first error.
func (c *Controller) Results(ctx context.Context, id string, pageSize int) iter.Seq2[RowPage, error] {
	limit := int32(min(max(pageSize, 1), MaxPageSize))
	return func(yield func(RowPage, error) bool) {
		paginator := athena.NewGetQueryResultsPaginator(c.API, &athena.GetQueryResultsInput{
			QueryExecutionId: aws.String(id),
		}, func(o *athena.GetQueryResultsPaginatorOptions) {
			o.Limit = limit
		})
		first := true
		for paginator.HasMorePages() {
			out, err := paginator.NextPage(ctx)
			if err != nil {
				yield(RowPage{}, fmt.Errorf("get query results %s: %w", id, err))
				return
			}
			page := rowPage(out.ResultSet, first)
			first = false
			if !yield(page, nil) {
				return
			}
		}
	}
}

// rowPage converts a result set. SELECT results repeat the column names as
// the first row of the first page; that row is dropped.
func rowPage(set *types.ResultSet, first bool) RowPage {
	var page RowPage
	if set == nil {
		return page
	}
	if set.ResultSetMetadata != nil {
		for _, info := range set.ResultSetMetadata.ColumnInfo {
			page.Columns = append(page.Columns, ResultColumn{Name: aws.ToString(info.Name), Type: aws.ToString(info.Type)})
		}
	}
	rows := set.Rows
	if first && len(rows) > 0 && isHeader(rows[0], page.Columns) {
		rows = rows[1:]
	}
	page.Rows = make([][]any, 0, len(rows))
	for _, row := range rows {
		values := make([]any, len(row.Data))
		for i, datum := range row.Data {
			if datum.VarCharValue != nil {
				values[i] = *datum.VarCharValue
			}
		}
		page.Rows = append(page.Rows, values)
	}
	return page
}

func isHeader(row types.Row, columns []ResultColumn) bool {
	if len(columns) == 0 || len(row.Data) != len(columns) {
		return false
	}
	for i, datum := range row.Data {
		if aws.ToString(datum.VarCharValue) != columns[i].Name {
			return false
		}
	}
	return true
}
