/*
Package cli provides the building blocks of the permitgate command: output
formatters, a progress reporter, signal handling and the error types that
decide the process exit code.

Output Formatting:

Commands accept --format text|json (and csv where the result is a table):

	format, err := cli.ParseFormat(flag, cli.FormatText, cli.FormatJSON)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(os.Stdout, report)

Results control their text rendering by implementing TextWriter and their
CSV rendering by implementing Tabular.

Progress Reporting:

	progress := cli.NewProgressReporter(os.Stderr, "evals")
	progress.Start(int64(len(facts)))
	for range facts {
		// evaluate
		progress.Add(1)
	}
	progress.Finish()

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()

Exit Codes:

ExitCode maps a command error to the process exit status: ConfigError
exits with 2 and any other failure with 1.
*/
package cli
