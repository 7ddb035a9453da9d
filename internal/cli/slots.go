package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"clinicagenda/internal/auth"
	grpcTransport "clinicagenda/internal/transport/grpc"
)

func newSlotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots [date]",
		Short: "List slot availability for a date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			duration, _ := cmd.Flags().GetInt("duration")
			exclude, _ := cmd.Flags().GetString("exclude")
			timeout, _ := cmd.Flags().GetDuration("timeout")

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if addr == "" {
				addr = cfg.GRPCAddr
			}
			token, err := auth.NewTokens(cfg.JWTSecret, time.Minute).Issue("clinicctl", "")
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}

			conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return fmt.Errorf("dial %s: %w", addr, err)
			}
			defer conn.Close()

			req := map[string]any{"date": args[0]}
			if duration > 0 {
				req["duration"] = duration
			}
			if exclude != "" {
				req["exclude_id"] = exclude
			}
			in, err := structpb.NewStruct(req)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)

			out, err := grpcTransport.NewSchedulingClient(conn).ListSlots(ctx, in)
			if err != nil {
				return fmt.Errorf("list slots: %w", err)
			}
			printSlots(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().String("addr", "", "gRPC address (defaults to grpc.addr)")
	cmd.Flags().Int("duration", 0, "appointment length in minutes (0 uses the default)")
	cmd.Flags().String("exclude", "", "appointment id to ignore, e.g. the one being edited")
	cmd.Flags().Duration("timeout", 5*time.Second, "request timeout")
	return cmd
}

func printSlots(w io.Writer, out *structpb.Struct) {
	slots := out.GetFields()["slots"].GetListValue().GetValues()
	free := 0

	fmt.Fprintf(w, "%-6s %-10s\n", "Time", "Status")
	fmt.Fprintln(w, "-----------------")
	for _, v := range slots {
		f := v.GetStructValue().GetFields()
		status := "busy"
		if f["available"].GetBoolValue() {
			status = "free"
			free++
		}
		fmt.Fprintf(w, "%-6s %-10s\n", f["time"].GetStringValue(), status)
	}
	fmt.Fprintf(w, "\n%d of %d slot(s) free on %s\n", free, len(slots), out.GetFields()["date"].GetStringValue())
}
