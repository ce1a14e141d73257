package athenarun

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sayan-gitkid/sample-aws-tests/internal/dataset"
	"github.com/sayan-gitkid/sample-aws-tests/internal/storage"
)

type demoOptions struct {
	bucket   string
	folder   string
	fileName string
	csvPath  string
	table    string
	sql      string
	fetch    bool
}

// newDemoCmd stages a dataset, registers it as an external table and runs a
// select against it, one statement after another.
func newDemoCmd(a *app) *cobra.Command {
	var opts demoOptions
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Stage a dataset, create an external table over it and query it",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			key, err := storage.BuildStagingKey(opts.folder, opts.fileName)
			if err != nil {
				return &usageError{err: err}
			}
			target, err := storage.NewLocation(opts.bucket, key)
			if err != nil {
				return &usageError{err: err}
			}
			if a.cfg.Athena.OutputLocation == "" {
				a.cfg.Athena.OutputLocation = storage.Location{Bucket: target.Bucket, Key: "output/"}.String()
			}

			ds, err := loadDataset(opts.csvPath)
			if err != nil {
				return err
			}
			if _, err := a.stage(ctx, ds, target); err != nil {
				return err
			}

			statements, err := demoStatements(ds, opts, target)
			if err != nil {
				return err
			}
			runner, err := a.runner(ctx)
			if err != nil {
				return err
			}
			ids, err := runner.RunSequence(ctx, statements)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			last := ids[len(ids)-1]
			_, _ = fmt.Fprintf(out, "Query %q csv s3_path: %s\n", statements[len(statements)-1], runner.ResultPath(last))
			if !opts.fetch {
				return nil
			}
			result, err := runner.FetchResult(ctx, last)
			if err != nil {
				return err
			}
			return dataset.WriteCSV(out, result)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.bucket, "bucket", "", "bucket that receives the staged object and, by default, the results")
	flags.StringVar(&opts.folder, "folder", "sample_data", "key prefix the external table reads from")
	flags.StringVar(&opts.fileName, "file-name", "sample.parquet", "object name of the staged dataset")
	flags.StringVar(&opts.csvPath, "csv", "", "comma-delimited source file; the sample dataset is used when empty")
	flags.StringVar(&opts.table, "table", "", "external table name (default animals, or tx_list with --csv)")
	flags.StringVar(&opts.sql, "sql", "", "select to run after the table exists (default selects every row)")
	flags.BoolVar(&opts.fetch, "fetch", false, "print the CSV result of the select")
	_ = cmd.MarkFlagRequired("bucket")
	return cmd
}

func demoStatements(ds dataset.Dataset, opts demoOptions, target storage.Location) ([]string, error) {
	table := strings.TrimSpace(opts.table)
	if table == "" {
		table = "animals"
		if opts.csvPath != "" {
			table = "tx_list"
		}
	}
	ddl, err := externalTableDDL(table, ds, storage.Location{Bucket: target.Bucket, Key: strings.TrimSuffix(target.Key, lastSegment(target.Key))})
	if err != nil {
		return nil, err
	}
	selectSQL := strings.TrimSpace(opts.sql)
	if selectSQL == "" {
		selectSQL = fmt.Sprintf(`SELECT * FROM "%s"`, strings.ReplaceAll(table, `"`, `""`))
	}
	return []string{ddl, selectSQL}, nil
}

// externalTableDDL renders a CREATE EXTERNAL TABLE statement over the
// parquet objects under location, with one column per dataset column.
func externalTableDDL(table string, ds dataset.Dataset, location storage.Location) (string, error) {
	if len(ds.Columns) == 0 {
		return "", fmt.Errorf("dataset has no columns")
	}
	if !location.IsPrefix() {
		location.Key += "/"
	}
	columns := make([]string, 0, len(ds.Columns))
	for _, column := range ds.Columns {
		columns = append(columns, fmt.Sprintf("  %s %s", quoteAthenaIdent(column.Name), athenaType(column.Kind)))
	}
	var b strings.Builder
	_, _ = fmt.Fprintf(&b, "CREATE EXTERNAL TABLE IF NOT EXISTS %s(\n", quoteAthenaIdent(table))
	b.WriteString(strings.Join(columns, ",\n"))
	b.WriteString(")\n")
	b.WriteString("ROW FORMAT SERDE\n  'org.apache.hadoop.hive.ql.io.parquet.serde.ParquetHiveSerDe'\n")
	b.WriteString("STORED AS INPUTFORMAT\n  'org.apache.hadoop.hive.ql.io.parquet.MapredParquetInputFormat'\n")
	b.WriteString("OUTPUTFORMAT\n  'org.apache.hadoop.hive.ql.io.parquet.MapredParquetOutputFormat'\n")
	_, _ = fmt.Fprintf(&b, "LOCATION\n  '%s'\n", location)
	b.WriteString("TBLPROPERTIES ('parquet.compression'='GZIP')")
	return b.String(), nil
}

func athenaType(kind dataset.Kind) string {
	switch kind {
	case dataset.KindInt64:
		return "bigint"
	case dataset.KindFloat64:
		return "double"
	case dataset.KindBool:
		return "boolean"
	default:
		return "string"
	}
}

func quoteAthenaIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func lastSegment(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}
