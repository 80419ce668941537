package main

import "fmt"

// consoleNotifier prints signaling narration and instant messages to the
// terminal. There is no GUI shell in scope; this is the CLI front end
// implementing session.Notifier.
type consoleNotifier struct{}

func newConsoleNotifier() *consoleNotifier {
	return &consoleNotifier{}
}

func (n *consoleNotifier) Notify(message string) {
	fmt.Printf("[kryptofon] %s\n", message)
}

func (n *consoleNotifier) NotifyMessage(from, message string) {
	fmt.Printf("<%s> %s\n", from, message)
}
