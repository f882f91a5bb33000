package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joeychilson/cacheurl/config"
	"github.com/joeychilson/cacheurl/rewrite"
	"github.com/joeychilson/cacheurl/sitemap"
	urlpkg "github.com/joeychilson/cacheurl/url"
)

// options holds the flags shared by every command.
type options struct {
	cache      string
	suffix     string
	configPath string
	json       bool
}

// target resolves the flags into a transformer and the domain suffix to use.
func (o *options) target() (*urlpkg.Transformer, string, error) {
	cfg := config.New()
	if o.configPath != "" {
		var err error
		cfg, err = config.LoadConfig(o.configPath)
		if err != nil {
			return nil, "", err
		}
	}
	cfg.ApplyEnv()

	t, err := cfg.Transformer()
	if err != nil {
		return nil, "", err
	}

	if o.suffix != "" {
		return t, strings.Trim(o.suffix, "."), nil
	}
	suffix, err := cfg.Suffix(o.cache)
	if err != nil {
		return nil, "", err
	}
	return t, suffix, nil
}

// convertResult is the JSON form of one converted URL.
type convertResult struct {
	URL      string `json:"url"`
	CacheURL string `json:"cache_url,omitempty"`
	Class    string `json:"class,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	Error    string `json:"error,omitempty"`
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "cacheurl [url...]",
		Short: "Convert canonical URLs to AMP cache URLs",
		Long: `Convert canonical document URLs to the URLs a cache serves them from.

URLs are read from the arguments, or one per line from stdin when no
arguments are given.`,
		Example: `  cacheurl https://example.com/article.html
  cacheurl --cache bing https://example.com/logo.png
  cat urls.txt | cacheurl --json`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, suffix, err := opts.target()
			if err != nil {
				return err
			}

			inputs := args
			if len(inputs) == 0 {
				inputs, err = readLines(cmd.InOrStdin())
				if err != nil {
					return err
				}
			}
			return convert(cmd.OutOrStdout(), cmd.ErrOrStderr(), t, suffix, inputs, opts.json)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.cache, "cache", "c", "", "Named cache from the config (default: the configured default)")
	flags.StringVarP(&opts.suffix, "suffix", "s", "", "Cache domain suffix, overriding --cache")
	flags.StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	flags.BoolVar(&opts.json, "json", false, "Output as JSON")

	cmd.AddCommand(
		newDecodeCommand(opts),
		newSitemapCommand(opts),
		newRewriteCommand(opts),
	)
	return cmd
}

func convert(stdout, stderr io.Writer, t *urlpkg.Transformer, suffix string, inputs []string, asJSON bool) error {
	encoder := json.NewEncoder(stdout)
	encoder.SetEscapeHTML(false)

	failed := 0
	for _, in := range inputs {
		res, err := t.Transform(suffix, in)
		if err != nil {
			failed++
			if asJSON {
				if encErr := encoder.Encode(convertResult{URL: in, Error: err.Error()}); encErr != nil {
					return encErr
				}
			} else {
				fmt.Fprintln(stderr, err)
			}
			continue
		}

		if asJSON {
			err = encoder.Encode(convertResult{
				URL:      in,
				CacheURL: res.String(),
				Class:    res.Class.String(),
				Secure:   res.Secure,
			})
		} else {
			_, err = fmt.Fprintln(stdout, res.String())
		}
		if err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d urls could not be converted", failed, len(inputs))
	}
	return nil
}

func newDecodeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "decode <cache-host>",
		Short: "Recover the origin hostname from a cache hostname",
		Example: `  cacheurl decode example-com.cdn.ampproject.org
  cacheurl decode xn--bcher-example-wob`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, suffix, err := opts.target()
			if err != nil {
				return err
			}

			label := strings.TrimSuffix(strings.ToLower(args[0]), "."+suffix)
			if strings.Contains(label, ".") {
				return fmt.Errorf("%q is not a cache hostname under %q", args[0], suffix)
			}

			host, err := urlpkg.DecodeHost(label)
			if err != nil {
				return err
			}

			if opts.json {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"cache_host": args[0],
					"host":       host,
				})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), host)
			return err
		},
	}
}

func newSitemapCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sitemap <file>",
		Short: "Rewrite the locations of a sitemap to cache URLs",
		Long: `Rewrite every <loc> of a sitemap or sitemap index to its cache URL and
write the resulting sitemap to stdout. Use "-" to read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, suffix, err := opts.target()
			if err != nil {
				return err
			}

			data, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			doc, err := sitemap.Parse(data)
			if err != nil {
				return err
			}

			out, err := doc.Rewrite(func(loc string) (string, error) {
				return t.CacheURL(suffix, loc)
			})
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: dropped locations:", err)
			}
			return out.Encode(cmd.OutOrStdout())
		},
	}
}

func newRewriteCommand(opts *options) *cobra.Command {
	var (
		baseURL  string
		sanitize bool
		markdown bool
	)

	cmd := &cobra.Command{
		Use:   "rewrite <file>",
		Short: "Point the subresources of an HTML document at the cache",
		Long: `Rewrite images, stylesheets and other subresources of an HTML document to
their cache URLs. Use "-" to read from stdin.`,
		Example: `  cacheurl rewrite page.html --base https://example.com/page.html
  curl -s https://example.com/ | cacheurl rewrite - --base https://example.com/ --markdown`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, suffix, err := opts.target()
			if err != nil {
				return err
			}

			data, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			var rwOpts []rewrite.Option
			if sanitize {
				rwOpts = append(rwOpts, rewrite.WithSanitizer(rewrite.SanitizePolicy()))
			}
			rw := rewrite.New(t, suffix, rwOpts...)

			var res *rewrite.Result
			if markdown {
				res, err = rw.Markdown(data, baseURL)
			} else {
				res, err = rw.Rewrite(data, baseURL)
			}
			if err != nil {
				return err
			}

			if opts.json {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetEscapeHTML(false)
				return encoder.Encode(map[string]any{
					"content":   string(res.Content),
					"rewritten": res.Rewritten,
					"skipped":   res.Skipped,
				})
			}

			for _, skip := range res.Skipped {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s: %s\n", skip.URL, skip.Reason)
			}
			_, err = cmd.OutOrStdout().Write(res.Content)
			return err
		},
	}

	cmd.Flags().StringVar(&baseURL, "base", "", "URL the document was served from (required)")
	cmd.Flags().BoolVar(&sanitize, "sanitize", false, "Sanitize the document before rewriting")
	cmd.Flags().BoolVar(&markdown, "markdown", false, "Render the result as Markdown")
	_ = cmd.MarkFlagRequired("base")
	return cmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return lines, nil
}
