// Package tasks implements the forum's one-shot daily reward actions:
// sign-in, lottery, space visits, greetings, credit exchange and the
// reward summary. Every action resolves to a Result; none aborts the run.
package tasks
