// votebench 并发投票压测工具：对运行中的服务并发投票，并检查票数是否准确增加
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"polls-backend/logger"
	"polls-backend/service"

	"github.com/spf13/pflag"
)

type options struct {
	baseURL     string
	questionID  uint
	choiceID    uint
	votes       int
	concurrency int
	timeout     time.Duration
}

func main() {
	log := logger.NewLogger("votebench", "info")

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.WithError(err).Fatal("参数错误")
	}

	if err := run(context.Background(), opts, log); err != nil {
		log.WithError(err).Fatal("压测失败")
	}
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	flagSet := pflag.NewFlagSet("votebench", pflag.ContinueOnError)
	flagSet.StringVar(&opts.baseURL, "addr", "http://localhost:8090", "服务地址")
	flagSet.UintVar(&opts.questionID, "question", 0, "问题ID")
	flagSet.UintVar(&opts.choiceID, "choice", 0, "选项ID")
	flagSet.IntVarP(&opts.votes, "votes", "n", 100, "投票总数")
	flagSet.IntVarP(&opts.concurrency, "concurrency", "c", 10, "并发数")
	flagSet.DurationVar(&opts.timeout, "timeout", 10*time.Second, "单个请求超时")

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if opts.questionID == 0 || opts.choiceID == 0 {
		return nil, errors.New("必须指定 --question 和 --choice")
	}
	if opts.votes < 1 || opts.concurrency < 1 {
		return nil, errors.New("--votes 和 --concurrency 必须大于0")
	}
	opts.baseURL = strings.TrimRight(opts.baseURL, "/")
	return opts, nil
}

func run(ctx context.Context, opts *options, log *logger.Logger) error {
	client := &http.Client{
		Timeout: opts.timeout,
		// 投票成功返回302，不跟随重定向
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	before, err := fetchVotes(ctx, client, opts)
	if err != nil {
		return err
	}
	log.Infof("初始票数: %d", before)

	var accepted, rejected, failed int64
	jobs := make(chan struct{})
	var wg sync.WaitGroup

	start := time.Now()
	for i := 0; i < opts.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				code, err := castVote(ctx, client, opts)
				switch {
				case err != nil:
					atomic.AddInt64(&failed, 1)
					log.WithError(err).Warn("投票请求失败")
				case code == http.StatusFound:
					atomic.AddInt64(&accepted, 1)
				default:
					atomic.AddInt64(&rejected, 1)
				}
			}
		}()
	}
	for i := 0; i < opts.votes; i++ {
		jobs <- struct{}{}
	}
	close(jobs)
	wg.Wait()
	elapsed := time.Since(start)

	after, err := fetchVotes(ctx, client, opts)
	if err != nil {
		return err
	}

	log.WithField("accepted", accepted).
		WithField("rejected", rejected).
		WithField("failed", failed).
		WithField("elapsed", elapsed.String()).
		Infof("最终票数: %d，吞吐量: %.1f 票/秒", after, float64(opts.votes)/elapsed.Seconds())

	// 其他客户端同时投票时差值会偏大，只检查不丢票
	if after-before < accepted {
		return fmt.Errorf("丢失了 %d 票：成功 %d，票数只增加了 %d", accepted-(after-before), accepted, after-before)
	}
	return nil
}

func castVote(ctx context.Context, client *http.Client, opts *options) (int, error) {
	form := url.Values{"choice": {fmt.Sprint(opts.choiceID)}}
	endpoint := fmt.Sprintf("%s/api/polls/%d/vote", opts.baseURL, opts.questionID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func fetchVotes(ctx context.Context, client *http.Client, opts *options) (int64, error) {
	endpoint := fmt.Sprintf("%s/api/polls/%d/results", opts.baseURL, opts.questionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("获取投票结果失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("获取投票结果失败: HTTP %d", resp.StatusCode)
	}

	var results service.QuestionResults
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return 0, fmt.Errorf("解析投票结果失败: %w", err)
	}

	for _, choice := range results.Choices {
		if choice.ID == opts.choiceID {
			return choice.Votes, nil
		}
	}
	return 0, fmt.Errorf("问题 %d 没有选项 %d", opts.questionID, opts.choiceID)
}
