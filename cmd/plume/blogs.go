package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	plume "github.com/plumesocial/plume-go"
	"github.com/spf13/cobra"
)

var (
	blogTags       string
	blogVisibility string
	blogAuthor     string
	blogLimit      int
)

func init() {
	rootCmd.AddCommand(blogsCmd)
	blogsCmd.AddCommand(blogsListCmd)
	blogsCmd.AddCommand(blogsGetCmd)
	blogsCmd.AddCommand(blogsCreateCmd)
	blogsCmd.AddCommand(blogsLikeCmd)
	blogsCmd.AddCommand(blogsCommentCmd)
	blogsCmd.AddCommand(blogsCommentsCmd)

	blogsListCmd.Flags().StringVar(&blogAuthor, "author", "", "filter by author ID")
	blogsListCmd.Flags().IntVar(&blogLimit, "limit", 20, "maximum results")
	blogsCreateCmd.Flags().StringVar(&blogTags, "tags", "", "comma-separated tags")
	blogsCreateCmd.Flags().StringVar(&blogVisibility, "visibility", "public", "public, unlisted, or draft")
}

var blogsCmd = &cobra.Command{
	Use:   "blogs",
	Short: "Browse and publish blog posts",
}

var blogsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent blogs",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getAnonClient()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		result, err := client.Blogs.List(ctx, &plume.BlogListOptions{
			AuthorID: blogAuthor,
			Limit:    blogLimit,
		})
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	},
}

var blogsGetCmd = &cobra.Command{
	Use:   "get <blog-id>",
	Short: "Fetch a single blog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getAnonClient()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		result, err := client.Blogs.Get(ctx, args[0])
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	},
}

var blogsCreateCmd = &cobra.Command{
	Use:   "create <title> [content-file]",
	Short: "Publish a blog post",
	Long:  "Publish a blog post. Content is read from the given file, or from stdin when omitted.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		title := args[0]

		var content []byte
		var err error
		if len(args) == 2 {
			content, err = os.ReadFile(args[1])
		} else {
			content, err = readAllStdin()
		}
		if err != nil {
			return fmt.Errorf("cannot read content: %w", err)
		}

		var tags []string
		if blogTags != "" {
			for _, t := range strings.Split(blogTags, ",") {
				if t = strings.TrimSpace(t); t != "" {
					tags = append(tags, t)
				}
			}
		}

		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		result, err := client.Blogs.Create(ctx, &plume.BlogCreateOptions{
			Title:      title,
			Content:    string(content),
			Tags:       tags,
			Visibility: blogVisibility,
		})
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	},
}

var blogsLikeCmd = &cobra.Command{
	Use:   "like <blog-id>",
	Short: "Like a blog post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		result, err := client.Blogs.Like(ctx, args[0])
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	},
}

var blogsCommentCmd = &cobra.Command{
	Use:   "comment <blog-id> <text>",
	Short: "Comment on a blog post",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		result, err := client.Comments.Create(ctx, args[0], args[1], nil)
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	},
}

var blogsCommentsCmd = &cobra.Command{
	Use:   "comments <blog-id>",
	Short: "List comments on a blog post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getAnonClient()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		result, err := client.Comments.List(ctx, args[0], nil)
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	},
}

func readAllStdin() ([]byte, error) {
	fi, err := os.Stdin.Stat()
	if err == nil && (fi.Mode()&os.ModeCharDevice) != 0 {
		return nil, fmt.Errorf("no content file given and stdin is a terminal")
	}
	return io.ReadAll(os.Stdin)
}
