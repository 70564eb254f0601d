// checkoutctl is a CLI tool for exercising storefront checkout flows.
// Each command performs a single operation, making it composable for scripts.
// The session travels in the Storefront-Session header: pass --cart/--cache
// and read the updated values back from the command output.
//
// Examples:
//
//	CART=$(checkoutctl add --locale tw --variant variant_01 -q)
//	checkoutctl address --cart $CART --email mei@example.com --address1 "1 Main St" --country tw
//	checkoutctl shipping-options --cart $CART
//	checkoutctl shipping --cart $CART --option so_01
//	checkoutctl pay --cart $CART --provider bank-transfer
//	checkoutctl place --cart $CART
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"storefront-checkout/internal/session"
)

var client = &http.Client{Timeout: 30 * time.Second}

// Global flags (apply to all commands)
var (
	serverURL string
	locale    string
	cartID    string
	cacheID   string
	quiet     bool
	noColor   bool
	verbose   bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorBlue, colorCyan, colorGray = "", "", ""
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s✗ %v%s\n", colorRed, err, colorReset)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "checkoutctl",
		Short:         "Storefront checkout flow test tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor || os.Getenv("NO_COLOR") != "" {
				disableColors()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&serverURL, "server", "http://localhost:8080", "checkout server base URL")
	pf.StringVar(&locale, "locale", "us", "country code used to pick the region")
	pf.StringVar(&cartID, "cart", "", "cart ID from a previous command")
	pf.StringVar(&cacheID, "cache", "", "cache ID from a previous command")
	pf.BoolVarP(&quiet, "quiet", "q", false, "only print the resulting ID")
	pf.BoolVar(&noColor, "no-color", false, "disable colored output")
	pf.BoolVarP(&verbose, "verbose", "v", false, "show full request/response")

	root.AddCommand(
		newCartCmd(),
		newAddCmd(),
		newUpdateItemCmd(),
		newRemoveItemCmd(),
		newPromoCmd(),
		newAddressCmd(),
		newShippingOptionsCmd(),
		newShippingCmd(),
		newPayCmd(),
		newStepsCmd(),
		newPlaceCmd(),
		newOrderCmd(),
		newClearCmd(),
	)
	return root
}

// =============================================================================
// CART COMMANDS
// =============================================================================

func newCartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cart",
		Short: "Get the cart, creating it if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := doRequest("GET", "/store/"+url.PathEscape(locale)+"/cart", nil)
			if err != nil {
				return err
			}
			printCart(resp.body)
			return nil
		},
	}
}

func newAddCmd() *cobra.Command {
	var variant string
	var quantity int
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a variant to the cart",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := doRequest("POST", "/store/"+url.PathEscape(locale)+"/cart/line-items", map[string]interface{}{
				"variant_id": variant,
				"quantity":   quantity,
			})
			if err != nil {
				return err
			}
			printSuccess("Line item added")
			printCart(resp.body)
			return nil
		},
	}
	cmd.Flags().StringVar(&variant, "variant", "", "variant ID (required)")
	cmd.Flags().IntVar(&quantity, "qty", 1, "quantity")
	cmd.MarkFlagRequired("variant")
	return cmd
}

func newUpdateItemCmd() *cobra.Command {
	var line string
	var quantity int
	cmd := &cobra.Command{
		Use:   "update-item",
		Short: "Change a line item's quantity",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := doRequest("POST", "/store/cart/line-items/"+url.PathEscape(line), map[string]interface{}{
				"quantity": quantity,
			})
			if err != nil {
				return err
			}
			printCart(resp.body)
			return nil
		},
	}
	cmd.Flags().StringVar(&line, "line", "", "line item ID (required)")
	cmd.Flags().IntVar(&quantity, "qty", 1, "quantity")
	cmd.MarkFlagRequired("line")
	return cmd
}

func newRemoveItemCmd() *cobra.Command {
	var line string
	cmd := &cobra.Command{
		Use:   "remove-item",
		Short: "Remove a line item",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := doRequest("DELETE", "/store/cart/line-items/"+url.PathEscape(line), nil)
			if err != nil {
				return err
			}
			printCart(resp.body)
			return nil
		},
	}
	cmd.Flags().StringVar(&line, "line", "", "line item ID (required)")
	cmd.MarkFlagRequired("line")
	return cmd
}

func newPromoCmd() *cobra.Command {
	var codes []string
	cmd := &cobra.Command{
		Use:   "promo",
		Short: "Apply promotion codes",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := doRequest("POST", "/store/cart/promotions", map[string]interface{}{
				"promo_codes": codes,
			})
			if err != nil {
				return err
			}
			printSuccess("Promotions applied")
			printCart(resp.body)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&codes, "code", nil, "promotion code (repeatable)")
	return cmd
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget the cart",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := doRequest("DELETE", "/store/cart", nil); err != nil {
				return err
			}
			printSuccess("Cart cleared")
			return nil
		},
	}
}

// =============================================================================
// CHECKOUT COMMANDS
// =============================================================================

func newAddressCmd() *cobra.Command {
	var email, first, last, address1, city, postal, country string
	cmd := &cobra.Command{
		Use:   "address",
		Short: "Set email and shipping address (billing copies shipping)",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := doRequest("POST", "/store/cart/addresses", map[string]interface{}{
				"email": email,
				"shipping_address": map[string]string{
					"first_name":   first,
					"last_name":    last,
					"address_1":    address1,
					"city":         city,
					"postal_code":  postal,
					"country_code": country,
				},
				"same_as_shipping": true,
			})
			if err != nil {
				return err
			}
			printSuccess("Addresses set")
			printCart(resp.body)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&email, "email", "john.doe@example.com", "customer email")
	f.StringVar(&first, "first-name", "John", "first name")
	f.StringVar(&last, "last-name", "Doe", "last name")
	f.StringVar(&address1, "address1", "123 Main St", "street address")
	f.StringVar(&city, "city", "San Francisco", "city")
	f.StringVar(&postal, "postal", "94102", "postal code")
	f.StringVar(&country, "country", "us", "country code")
	return cmd
}

func newShippingOptionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shipping-options",
		Short: "List shipping options for the cart",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := doRequest("GET", "/store/cart/shipping-options", nil)
			if err != nil {
				return err
			}
			options, _ := resp.body["shipping_options"].([]interface{})
			for _, o := range options {
				opt, _ := o.(map[string]interface{})
				id, _ := opt["id"].(string)
				name, _ := opt["name"].(string)
				if quiet {
					fmt.Println(id)
					continue
				}
				fmt.Printf("  %s%s%s  %s  %v\n", colorCyan, id, colorReset, name, opt["amount"])
			}
			return nil
		},
	}
}

func newShippingCmd() *cobra.Command {
	var option string
	cmd := &cobra.Command{
		Use:   "shipping",
		Short: "Select a shipping option",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := doRequest("POST", "/store/cart/shipping-methods", map[string]interface{}{
				"option_id": option,
			})
			if err != nil {
				return err
			}
			printSuccess("Shipping method set")
			printCart(resp.body)
			return nil
		},
	}
	cmd.Flags().StringVar(&option, "option", "", "shipping option ID (required)")
	cmd.MarkFlagRequired("option")
	return cmd
}

func newPayCmd() *cobra.Command {
	var provider string
	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Select a payment method",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := doRequest("POST", "/store/cart/payment", map[string]interface{}{
				"provider_id": provider,
			})
			if err != nil {
				return err
			}
			printSuccess("Payment method %s selected", provider)
			printCart(resp.body)
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "bank-transfer", "payment method")
	return cmd
}

func newStepsCmd() *cobra.Command {
	var step string
	cmd := &cobra.Command{
		Use:   "steps",
		Short: "Show checkout step state",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := doRequest("GET", "/store/cart/steps?step="+url.QueryEscape(step), nil)
			if err != nil {
				return err
			}
			steps, _ := resp.body["steps"].([]interface{})
			for _, s := range steps {
				st, _ := s.(map[string]interface{})
				mark := colorGray + "·" + colorReset
				if done, _ := st["complete"].(bool); done {
					mark = colorGreen + "✓" + colorReset
				}
				current := ""
				if cur, _ := st["current"].(bool); cur {
					current = colorBlue + " ←" + colorReset
				}
				fmt.Printf("  %s %v%s\n", mark, st["step"], current)
			}
			if redirect, ok := resp.body["redirect"].(string); ok {
				printWarning("Step unreachable, go to %s", redirect)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&step, "step", "", "active step")
	return cmd
}

func newPlaceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "place",
		Short: "Place the order",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := doRequest("POST", "/store/cart/complete", nil)
			if err != nil {
				return err
			}
			kind, _ := resp.body["kind"].(string)
			order, _ := resp.body["order"].(map[string]interface{})
			orderID, _ := order["id"].(string)

			switch kind {
			case "error":
				msg, _ := resp.body["message"].(string)
				return fmt.Errorf("order declined: %s", msg)
			case "redirect":
				to, _ := resp.body["to"].(string)
				if quiet {
					fmt.Println(orderID)
					return nil
				}
				printSuccess("Order placed")
				fmt.Printf("  Order:    %s%s%s\n", colorCyan, orderID, colorReset)
				fmt.Printf("  Redirect: %s\n", to)
			default:
				if quiet {
					fmt.Println(orderID)
					return nil
				}
				printSuccess("Order placed")
				fmt.Printf("  Order: %s%s%s\n", colorCyan, orderID, colorReset)
			}
			return nil
		},
	}
}

func newOrderCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Get a placed order",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := doRequest("GET", "/orders/"+url.PathEscape(id), nil)
			if err != nil {
				return err
			}
			if !quiet {
				printJSON(resp.raw, "  ")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "order ID (required)")
	cmd.MarkFlagRequired("id")
	return cmd
}

// =============================================================================
// HTTP
// =============================================================================

type response struct {
	body map[string]interface{}
	raw  []byte
}

// doRequest sends the session header built from --cart/--cache and adopts
// whatever session the server echoes back.
func doRequest(method, path string, body interface{}) (*response, error) {
	var reqBody io.Reader
	var reqJSON []byte

	if body != nil {
		var err error
		reqJSON, err = json.MarshalIndent(body, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	req, err := http.NewRequest(method, serverURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	header, err := session.FormatHeader(&session.State{Cart: cartID, Cache: cacheID})
	if err != nil {
		return nil, fmt.Errorf("encoding session: %w", err)
	}
	if header == "" {
		// An empty dictionary would fall back to cookies.
		header = `cache=""`
	}
	req.Header.Set(session.Header, header)

	if verbose {
		printRequest(method, path, reqJSON)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if verbose {
		printResponse(resp.StatusCode, respBody, duration)
	}

	if echoed := resp.Header.Get(session.Header); echoed != "" {
		if state, err := session.ParseHeader(echoed); err == nil {
			cartID, cacheID = state.Cart, state.Cache
			printInfo("session: --cart %q --cache %q", cartID, cacheID)
		}
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Code != "" {
			return nil, fmt.Errorf("HTTP %d %s: %s", resp.StatusCode, apiErr.Error.Code, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	out := &response{raw: respBody}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &out.body); err != nil {
			return nil, fmt.Errorf("parsing response: %w", err)
		}
	}
	return out, nil
}

// =============================================================================
// OUTPUT
// =============================================================================

func printCart(cart map[string]interface{}) {
	id, _ := cart["id"].(string)
	if quiet {
		fmt.Println(id)
		return
	}
	fmt.Printf("  Cart:  %s%s%s\n", colorCyan, id, colorReset)
	if items, ok := cart["items"].([]interface{}); ok {
		for _, it := range items {
			item, _ := it.(map[string]interface{})
			fmt.Printf("    %v × %v  %v\n", item["quantity"], item["variant_id"], item["total"])
		}
	}
	fmt.Printf("  Total: %v %v\n", cart["total"], cart["currency_code"])
}

func printRequest(method, path string, body []byte) {
	fmt.Printf("%s→ %s %s%s\n", colorBlue, method, path, colorReset)
	if len(body) > 0 {
		printJSON(body, "  ")
	}
}

func printResponse(status int, body []byte, duration time.Duration) {
	color := colorGreen
	if status >= 400 {
		color = colorRed
	}
	fmt.Printf("%s← %d%s %s(%s)%s\n", color, status, colorReset, colorGray, duration.Round(time.Millisecond), colorReset)
	printJSON(body, "  ")
}

func printJSON(data []byte, prefix string) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, prefix, "  "); err != nil {
		fmt.Printf("%s%s\n", prefix, string(data))
		return
	}
	fmt.Printf("%s%s\n", prefix, buf.String())
}

func printSuccess(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printWarning(format string, args ...interface{}) {
	fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s→ %s%s\n", colorGray, fmt.Sprintf(format, args...), colorReset)
	}
}
