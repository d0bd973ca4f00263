package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
)

// Queue operations wait on the network, so they always run as commands
// and never inside Update.

func searchCmd(ctx context.Context, svc Services, query string) tea.Cmd {
	return func() tea.Msg {
		log.Debug("Searching", "query", query)
		res, err := svc.Search.First(ctx, query)
		if err != nil {
			return enqueuedMsg{query: query, searchErr: err}
		}
		item, err := svc.Queue.Enqueue(ctx, res.VideoID, res.Name, res.Artist())
		return enqueuedMsg{query: query, item: item, loadErr: err}
	}
}

func switchCmd(ctx context.Context, q Queue, index int) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{op: "Switch", err: q.SwitchTo(ctx, index), foreground: true}
	}
}

func removeCmd(ctx context.Context, q Queue, index int) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{op: "Remove", err: q.Remove(ctx, index), foreground: true}
	}
}

func retryCmd(ctx context.Context, q Queue, index int) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{op: "Retry", err: q.Retry(ctx, index)}
	}
}
