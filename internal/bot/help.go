package bot

const helpText = `闹钟用法：
#定时闹钟 <时间> —— 设置闹钟，随后发送提醒内容（可简写为 #定时）
#闹钟列表 —— 查看当前闹钟
#闹钟取消 <序号> —— 取消闹钟，多个序号用空格分隔
#闹钟详细帮助 —— 支持的时间格式`

const helpDetailText = `支持的时间格式：
相对时间：
  10分钟后 / 2小时后 / 1小时30分钟后 / 半小时后 / 一刻钟后
循环闹钟：
  每天8点 / 每天20:30:15 / 每晚10点半
  每周一下午3点（周几可用 一~六、日/天 或数字 1-7）
  每月15日9点 / 每年10月1日8点
指定时间：
  今天下午3点 / 明天早上8点半 / 后天中午 / 今晚9点
  9月12日早上7:30 / 2026-10-01 16:00
说明：
  下午/晚上的钟点按 12 小时制顺延，如"下午3点"即 15:00
  只给日期不给钟点时默认 08:00
  在群里设置时 @某人 可以提醒对方`
