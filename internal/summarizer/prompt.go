package summarizer

// SummarizationPrompt is the prompt prefix for generating summaries.
// It instructs the model to:
// - Respond in the same language as the transcript
// - Scale detail level with transcript length
// - Organize key points by topic for long content
const SummarizationPrompt = `You are a helpful assistant that summarizes transcripts.

IMPORTANT: You MUST respond in the SAME LANGUAGE as the transcript. If the transcript is in Chinese, respond in Chinese. If in English, respond in English. Match the input language exactly.

Please provide a comprehensive summary of the following transcript. The level of detail should match the content length:
- For short content (< 10 minutes): 3-5 key points
- For medium content (10-30 minutes): 8-15 key points
- For long content (30-60 minutes): 15-25 key points
- For very long content (> 60 minutes): 25-50 key points, organized by topic/theme

Include:
1. A summary that captures the main themes and narrative flow (scale with content length)
2. Key points organized by topic or chronologically - be comprehensive, don't over-condense
3. Notable quotes or specific examples mentioned (if any)

Format your response as:
## Summary
[Comprehensive summary - multiple paragraphs for long content]

## Key Points
### [Topic/Theme 1]
- [Point 1]
- [Point 2]
...

### [Topic/Theme 2]
- [Point 1]
- [Point 2]
...

## Notable Quotes (if any)
- "[Quote]"
...

Here is the transcript to summarize:

`
