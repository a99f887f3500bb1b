package main

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"ailib/pkg/types"
)

type runOptions struct {
	model     string
	stream    bool
	maxTokens int
	models    []string
}

func newRunCmd(o *rootOptions) *cobra.Command {
	var ro runOptions
	cmd := &cobra.Command{
		Use:   "run [prompt...]",
		Short: "Execute one request and print the NDJSON result to stdout",
		Example: "  ailibd run hello world\n" +
			"  ailibd run --stream --model tinyllama.Q4_K_M.gguf 'Write a haiku'\n" +
			"  ailibd run --multi echo,other 'compare these'",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.load()
			if err != nil {
				return err
			}
			mgr, _, shutdownTracing, err := newManager(cfg, cmd.ErrOrStderr(), cmd.ErrOrStderr(), prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer func() {
				_ = mgr.Close()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdownTracing(ctx)
			}()
			return mgr.Infer(cmd.Context(), ro.request(args), cmd.OutOrStdout(), nil)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&ro.model, "model", "m", "", "Model id (default: configured default model)")
	f.BoolVar(&ro.stream, "stream", false, "Print token lines as they are produced")
	f.IntVar(&ro.maxTokens, "max-tokens", 0, "Maximum new tokens")
	f.StringSliceVar(&ro.models, "multi", nil, "Fan the prompt out to these model ids")
	return cmd
}

func (ro runOptions) request(args []string) types.InferRequest {
	req := types.InferRequest{
		Model:     ro.model,
		Prompt:    strings.Join(args, " "),
		Stream:    ro.stream,
		MaxTokens: ro.maxTokens,
	}
	if len(ro.models) > 0 {
		req.Params = map[string]any{"multiModel": map[string]any{"modelIds": ro.models}}
	}
	return req
}
