package cli

import (
	"fmt"

	"github.com/dmitrijs2005/umasend/internal/client/api"
	"github.com/spf13/cobra"
)

type payFlags struct {
	amount            string
	receivingCurrency string
	sendingCurrency   string
	baseUnit          bool
}

func (f *payFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.amount, "amount", "a", "", "amount in the receiving currency's smallest unit")
	cmd.Flags().StringVar(&f.receivingCurrency, "currency", "", "receiving currency code")
	cmd.Flags().StringVar(&f.sendingCurrency, "sending-currency", "", "sending currency code (default SAT)")
	cmd.Flags().BoolVar(&f.baseUnit, "base-unit", false, "amount is in millisatoshis")
	_ = cmd.MarkFlagRequired("amount")
}

func (f *payFlags) params() api.PayReqParams {
	return api.PayReqParams{
		Amount:            f.amount,
		ReceivingCurrency: f.receivingCurrency,
		SendingCurrency:   f.sendingCurrency,
		IsBaseUnit:        f.baseUnit,
	}
}

func (a *app) pubKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pubkeys",
		Short: "Show the public keys the server publishes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			keys, err := a.client().PubKeys(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), keys)
		},
	}
}

func (a *app) lookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <address>",
		Short: "Look up a receiver such as $bob@vasp.example",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client().Lookup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func (a *app) payReqCmd() *cobra.Command {
	var f payFlags
	cmd := &cobra.Command{
		Use:   "payreq <callbackUuid>",
		Short: "Request an invoice for a looked-up receiver",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client().PayReq(cmd.Context(), args[0], f.params())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	f.register(cmd)
	return cmd
}

func (a *app) sendCmd() *cobra.Command {
	var sending string
	cmd := &cobra.Command{
		Use:   "send <callbackUuid>",
		Short: "Pay the invoice of a pay request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client().SendPayment(cmd.Context(), args[0], sending)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&sending, "sending-currency", "", "sending currency code (default SAT)")
	return cmd
}

func (a *app) payCmd() *cobra.Command {
	var f payFlags
	cmd := &cobra.Command{
		Use:   "pay <address>",
		Short: "Look up, request an invoice and pay in one go",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			c := a.client()

			lookup, err := c.Lookup(ctx, args[0])
			if err != nil {
				return fmt.Errorf("lookup: %w", err)
			}
			fmt.Fprintf(out, "receiver accepts %d-%d msats (kyc: %s)\n",
				lookup.MinSendableMsats, lookup.MaxSendableMsats, lookup.ReceiverKYCStatus)

			payReq, err := c.PayReq(ctx, lookup.CallbackUUID, f.params())
			if err != nil {
				return fmt.Errorf("payreq: %w", err)
			}
			fmt.Fprintf(out, "invoice for %d msats, receiver gets %d %s\n",
				payReq.AmountMsats, payReq.AmountReceivingCurrency, payReq.ReceivingCurrencyCode)

			res, err := c.SendPayment(ctx, payReq.CallbackUUID, f.sendingCurrency)
			if err != nil {
				return fmt.Errorf("send: %w", err)
			}
			return printJSON(out, res)
		},
	}
	f.register(cmd)
	return cmd
}
