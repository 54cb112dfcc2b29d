package crawler

import (
	"context"
	"log/slog"
)

// gather walks the node tree rooted at root in level order, waiting for each
// node to complete, and assembles the Result. Duplicates are skipped. The
// first interrupted node, or cancellation of ctx, ends the walk and the
// result gathered so far is returned with Interrupted set.
func gather(ctx context.Context, root *Node, logger *slog.Logger) Result {
	result := newResult()

	queue := []*Node{root}
	for len(queue) > 0 {
		node := queue[0]
		queue[0] = nil
		queue = queue[1:]

		switch node.Wait(ctx) {
		case StateDuplicate:
			continue
		case StateInterrupted:
			logger.Info("crawl interrupted, returning partial result",
				"url", node.URL(),
				"downloaded", len(result.Downloaded),
				"errors", len(result.Errors),
			)
			result.Interrupted = true
			return result
		}

		if err := node.Err(); err != nil {
			result.Errors[node.URL()] = err
			continue
		}

		result.Downloaded = append(result.Downloaded, node.URL())
		if doc := node.Document(); doc != nil && doc.Digest != "" {
			result.Digests[node.URL()] = doc.Digest
		}
		queue = append(queue, node.Children()...)
	}
	return result
}
