package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/hostfactory/aws-provider/pkg/application/commands"
	"github.com/hostfactory/aws-provider/pkg/application/queries"
	"github.com/hostfactory/aws-provider/pkg/domain/request"
)

var cmdRequests = &cobra.Command{
	Use:   "request",
	Short: "create, inspect, and cancel acquisition/return requests",
}

type createOptions struct {
	TemplateID   string
	MachineCount int
	RequesterID  string
	Priority     int
}

var createOpts = createOptions{}

var cmdRequestCreate = &cobra.Command{
	Use:   "create",
	Short: "create a new acquisition request against a template",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return createRequest(cmd, globalOpts, createOpts)
	},
}

type returnOptions struct {
	MachineIDs  string
	RequesterID string
	Reason      string
	Priority    int
}

var returnOpts = returnOptions{}

var cmdRequestReturn = &cobra.Command{
	Use:   "return",
	Short: "request that a set of machines be released",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return returnMachines(cmd, globalOpts, returnOpts)
	},
}

var cmdRequestStatus = &cobra.Command{
	Use:   "status",
	Short: "get the status of one request, or list every request",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return requestStatus(cmd, globalOpts, args)
	},
}

var cmdRequestCancel = &cobra.Command{
	Use:   "cancel <request-id>",
	Short: "cancel a pending or processing request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cancelRequest(cmd, globalOpts, args[0])
	},
}

func init() {
	rootCmd.AddCommand(cmdRequests)
	cmdRequests.AddCommand(cmdRequestCreate)
	cmdRequests.AddCommand(cmdRequestReturn)
	cmdRequests.AddCommand(cmdRequestStatus)
	cmdRequests.AddCommand(cmdRequestCancel)

	cmdRequestCreate.Flags().StringVar(&createOpts.TemplateID, "template", "", "template_id to provision against")
	cmdRequestCreate.Flags().IntVar(&createOpts.MachineCount, "count", 1, "number of machines to request")
	cmdRequestCreate.Flags().StringVar(&createOpts.RequesterID, "requester", "", "requester id")
	cmdRequestCreate.Flags().IntVar(&createOpts.Priority, "priority", 0, "request priority")

	cmdRequestReturn.Flags().StringVar(&returnOpts.MachineIDs, "machines", "", "comma-separated machine ids to return")
	cmdRequestReturn.Flags().StringVar(&returnOpts.RequesterID, "requester", "", "requester id")
	cmdRequestReturn.Flags().StringVar(&returnOpts.Reason, "reason", "", "return reason")
	cmdRequestReturn.Flags().IntVar(&returnOpts.Priority, "priority", 0, "request priority")
}

// RequestUI is the table-printable projection of a request.
type RequestUI struct {
	RequestID    string `table:"Request"`
	Type         string `table:"Type"`
	TemplateID   string `table:"Template"`
	Status       string `table:"Status"`
	MachineCount string `table:"Count"`
	ProviderName string `table:"Provider"`
}

func requestToUI(r *request.Request) RequestUI {
	return RequestUI{
		RequestID:    r.RequestID,
		Type:         string(r.RequestType),
		TemplateID:   r.TemplateID,
		Status:       string(r.Status),
		MachineCount: strconv.Itoa(r.MachineCount),
		ProviderName: r.ProviderName,
	}
}

func createRequest(cmd *cobra.Command, globalOpts GlobalOptions, opts createOptions) error {
	cfg, err := loadConfig(globalOpts)
	if err != nil {
		return err
	}
	app, err := buildApp(cmd.Context(), cfg, defaultLogger(globalOpts))
	if err != nil {
		return err
	}
	id, err := app.Commands.Execute(cmd.Context(), commands.CreateAcquisitionRequest{
		TemplateID:   opts.TemplateID,
		MachineCount: opts.MachineCount,
		RequesterID:  opts.RequesterID,
		Priority:     opts.Priority,
	})
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func returnMachines(cmd *cobra.Command, globalOpts GlobalOptions, opts returnOptions) error {
	cfg, err := loadConfig(globalOpts)
	if err != nil {
		return err
	}
	app, err := buildApp(cmd.Context(), cfg, defaultLogger(globalOpts))
	if err != nil {
		return err
	}
	machineIDs := lo.Filter(strings.Split(opts.MachineIDs, ","), func(id string, _ int) bool { return id != "" })
	id, err := app.Commands.Execute(cmd.Context(), commands.CreateReturnRequest{
		MachineIDs:  machineIDs,
		RequesterID: opts.RequesterID,
		Reason:      opts.Reason,
		Priority:    opts.Priority,
	})
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func requestStatus(cmd *cobra.Command, globalOpts GlobalOptions, args []string) error {
	cfg, err := loadConfig(globalOpts)
	if err != nil {
		return err
	}
	app, err := buildApp(cmd.Context(), cfg, defaultLogger(globalOpts))
	if err != nil {
		return err
	}

	if len(args) == 1 {
		result, err := app.Queries.Execute(cmd.Context(), queries.GetRequestByID{RequestID: args[0]})
		if err != nil {
			return err
		}
		r, _ := result.(*request.Request)
		printResult(globalOpts, []RequestUI{requestToUI(r)})
		return nil
	}

	result, err := app.Queries.Execute(cmd.Context(), queries.ListRequests{})
	if err != nil {
		return err
	}
	rows, _ := result.([]any)
	ui := make([]RequestUI, 0, len(rows))
	for _, row := range rows {
		if r, ok := row.(*request.Request); ok {
			ui = append(ui, requestToUI(r))
		}
	}
	printResult(globalOpts, ui)
	return nil
}

func cancelRequest(cmd *cobra.Command, globalOpts GlobalOptions, requestID string) error {
	cfg, err := loadConfig(globalOpts)
	if err != nil {
		return err
	}
	app, err := buildApp(cmd.Context(), cfg, defaultLogger(globalOpts))
	if err != nil {
		return err
	}
	if _, err := app.Commands.Execute(cmd.Context(), commands.CancelRequest{RequestID: requestID}); err != nil {
		return err
	}
	fmt.Println("cancelled", requestID)
	return nil
}
