package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flightctl/flightctl-mcp/pkg/client"
	"github.com/flightctl/flightctl-mcp/pkg/errors"
)

// Tool names exposed over MCP.
const (
	ToolQueryDevices            = "query_devices"
	ToolQueryFleets             = "query_fleets"
	ToolQueryEvents             = "query_events"
	ToolQueryEnrollmentRequests = "query_enrollment_requests"
	ToolQueryRepositories       = "query_repositories"
	ToolQueryResourceSyncs      = "query_resource_syncs"
	ToolRunCommandOnDevice      = "run_command_on_device"
)

// defaultQueryLimit caps query results when the caller does not pass a limit.
const defaultQueryLimit = 1000

const labelSelectorDoc = `Label selector matching on metadata labels. Supports '=' (e.g. "env=prod"),
'!=' (e.g. "tier!=frontend") and 'in (...)' (e.g. "region in (us, eu)").`

const fieldOperatorsDoc = `Supported operators: existence (<field>, !<field>), equality (=, ==, !=),
comparison (>, >=, <, <=), set membership (in, notin) and containment
(contains, notcontains).`

var (
	deviceFields = []string{
		"metadata.alias",
		"metadata.creationTimestamp",
		"metadata.name",
		"metadata.nameOrAlias",
		"metadata.owner",
		"status.applicationsSummary.status",
		"status.lastSeen",
		"status.lifecycle.status",
		"status.summary.status",
		"status.updated.status",
	}
	fleetFields = []string{
		"metadata.creationTimestamp",
		"metadata.name",
		"metadata.owner",
		"spec.template.spec.os.image",
	}
	eventFields = []string{
		"actor",
		"involvedObject.kind",
		"involvedObject.name",
		"metadata.creationTimestamp",
		"metadata.name",
		"metadata.owner",
		"reason",
		"type",
	}
	enrollmentRequestFields = []string{
		"metadata.creationTimestamp",
		"metadata.name",
		"metadata.owner",
		"status.approval.approved",
		"status.certificate",
	}
	repositoryFields = []string{
		"metadata.creationTimestamp",
		"metadata.name",
		"metadata.owner",
		"spec.type",
		"spec.url",
	}
	resourceSyncFields = []string{
		"metadata.creationTimestamp",
		"metadata.name",
		"metadata.owner",
		"spec.repository",
	}
)

const runCommandDoc = `Run a Linux command on a device console through the flightctl CLI. Useful
for diagnostics such as journalctl, ps or df; "journalctl -u flightctl-agent"
shows the device agent logs. The command is split on whitespace, so quoted
arguments with embedded spaces are not preserved. Returns the command's
standard output.`

func fieldSelectorDoc(kind string, fields []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Field selector filtering on %s attributes. Supported fields:\n", kind)
	for _, f := range fields {
		fmt.Fprintf(&b, "  %s\n", f)
	}
	b.WriteString(fieldOperatorsDoc)
	return b.String()
}

func queryToolDescription(what, kind string) string {
	return fmt.Sprintf(`Query Flight Control for %s. Returns the matching %s resources as a
pretty-printed JSON array, each with full metadata, spec and status.
Pagination is handled transparently up to the requested limit.`, what, kind)
}

func (s *Server) registerTools() {
	s.registerQueryTool(ToolQueryDevices, client.ResourceDevices,
		queryToolDescription("devices (edge hosts managed by the service)", "Device"),
		deviceFields, true)
	s.registerQueryTool(ToolQueryFleets, client.ResourceFleets,
		queryToolDescription("fleets (templated groups of devices)", "Fleet"),
		fleetFields, true)
	s.registerQueryTool(ToolQueryEvents, client.ResourceEvents,
		queryToolDescription("events (state changes and alerts recorded for resources)", "Event"),
		eventFields, false)
	s.registerQueryTool(ToolQueryEnrollmentRequests, client.ResourceEnrollmentRequests,
		queryToolDescription("enrollment requests (devices awaiting approval)", "EnrollmentRequest"),
		enrollmentRequestFields, true)
	s.registerQueryTool(ToolQueryRepositories, client.ResourceRepositories,
		queryToolDescription("repositories (git sources for device configuration)", "Repository"),
		repositoryFields, true)
	s.registerQueryTool(ToolQueryResourceSyncs, client.ResourceResourceSyncs,
		queryToolDescription("resource syncs (declarative imports from repositories)", "ResourceSync"),
		resourceSyncFields, true)
	s.registerRunCommandTool()
}

// registerQueryTool adds one list tool. Events carry no labels in Flight
// Control, so the events tool omits the label_selector parameter.
func (s *Server) registerQueryTool(name string, resource client.Resource, description string, fields []string, withLabelSelector bool) {
	opts := []mcp.ToolOption{mcp.WithDescription(description)}
	if withLabelSelector {
		opts = append(opts, mcp.WithString("label_selector",
			mcp.Description(labelSelectorDoc)))
	}
	opts = append(opts,
		mcp.WithString("field_selector",
			mcp.Description(fieldSelectorDoc(resource.Kind(), fields))),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results to return."),
			mcp.DefaultNumber(defaultQueryLimit)),
	)

	s.mcp.AddTool(mcp.NewTool(name, opts...), s.instrumented(name,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			spec := client.QuerySpec{
				Resource:      resource,
				FieldSelector: request.GetString("field_selector", ""),
				Limit:         request.GetInt("limit", defaultQueryLimit),
			}
			if withLabelSelector {
				spec.LabelSelector = request.GetString("label_selector", "")
			}
			items, err := s.querier.Query(ctx, spec)
			if err != nil {
				return nil, err
			}
			return jsonResult(items)
		}))
}

func (s *Server) registerRunCommandTool() {
	tool := mcp.NewTool(ToolRunCommandOnDevice,
		mcp.WithDescription(runCommandDoc),
		mcp.WithString("device_name",
			mcp.Required(),
			mcp.Description("Name of the target device resource.")),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("Command line to run on the device, e.g. \"df -h\".")),
	)

	s.mcp.AddTool(tool, s.instrumented(ToolRunCommandOnDevice,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			deviceName, err := request.RequireString("device_name")
			if err != nil {
				return nil, errors.NewValidationError("device_name", err.Error())
			}
			command, err := request.RequireString("command")
			if err != nil {
				return nil, errors.NewValidationError("command", err.Error())
			}
			cliPath, err := s.cli.EnsureInstalled(ctx)
			if err != nil {
				return nil, err
			}
			stdout, err := s.runner.RunCommand(ctx, cliPath, deviceName, command)
			if err != nil {
				return nil, err
			}
			return mcp.NewToolResultText(stdout), nil
		}))
}

func jsonResult(items []json.RawMessage) (*mcp.CallToolResult, error) {
	if items == nil {
		items = []json.RawMessage{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
